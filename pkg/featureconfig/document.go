package featureconfig

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Section is a per-region list inside the configuration document.
type Section string

const (
	SectionOffers          Section = "offers"
	SectionRetentionOffers Section = "retentionOffers"
	SectionExtensionOffers Section = "extensionOffers"
)

// Entry is one live coupon and its eligibility metadata.
type Entry struct {
	OfferCode         string    `json:"offerCode"`
	CouponCode        string    `json:"couponCode"`
	PlanCode          string    `json:"planCode"`
	UpgradeCouponCode string    `json:"upgradeCouponCode,omitempty"`
	EligibleSegments  []string  `json:"eligibleSegments"`
	DurationMonths    int       `json:"durationMonths"`
	PublishedAt       time.Time `json:"publishedAt"`
}

// Region holds the live entries of one region.
type Region struct {
	Offers          []Entry `json:"offers"`
	RetentionOffers []Entry `json:"retentionOffers"`
	ExtensionOffers []Entry `json:"extensionOffers"`
}

func (r *Region) section(s Section) (*[]Entry, error) {
	switch s {
	case SectionOffers:
		return &r.Offers, nil
	case SectionRetentionOffers:
		return &r.RetentionOffers, nil
	case SectionExtensionOffers:
		return &r.ExtensionOffers, nil
	}
	return nil, fmt.Errorf("unknown configuration section %q", s)
}

// Document is the per-environment configuration blob. Top-level keys this
// service does not own are carried through unchanged.
type Document struct {
	ConfigurationVersion int64
	Regions              map[string]*Region

	extra map[string]json.RawMessage
}

const (
	versionKey = "configurationVersion"
	regionsKey = "regions"
)

// Decode parses raw into a Document.
func Decode(raw []byte) (*Document, error) {
	doc := &Document{Regions: map[string]*Region{}}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode configuration document: %w", err)
	}
	d.Regions = map[string]*Region{}
	if raw, ok := fields[versionKey]; ok {
		if err := json.Unmarshal(raw, &d.ConfigurationVersion); err != nil {
			return fmt.Errorf("decode %s: %w", versionKey, err)
		}
		delete(fields, versionKey)
	}
	if raw, ok := fields[regionsKey]; ok {
		if err := json.Unmarshal(raw, &d.Regions); err != nil {
			return fmt.Errorf("decode %s: %w", regionsKey, err)
		}
		delete(fields, regionsKey)
	}
	d.extra = fields
	return nil
}

func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.extra)+2)
	for k, v := range d.extra {
		out[k] = v
	}
	out[versionKey] = d.ConfigurationVersion
	regions := d.Regions
	if regions == nil {
		regions = map[string]*Region{}
	}
	out[regionsKey] = regions
	return json.Marshal(out)
}

// Upsert replaces the entry with the same offer code in region/section, or
// appends it. Entries stay ordered by offer code.
func (d *Document) Upsert(region string, section Section, entry Entry) error {
	if region == "" {
		return fmt.Errorf("configuration region is required")
	}
	if entry.OfferCode == "" {
		return fmt.Errorf("configuration entry offer code is required")
	}
	if d.Regions == nil {
		d.Regions = map[string]*Region{}
	}
	r, ok := d.Regions[region]
	if !ok || r == nil {
		r = &Region{}
		d.Regions[region] = r
	}
	list, err := r.section(section)
	if err != nil {
		return err
	}
	replaced := false
	for i := range *list {
		if (*list)[i].OfferCode == entry.OfferCode {
			(*list)[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		*list = append(*list, entry)
	}
	sort.SliceStable(*list, func(i, j int) bool { return (*list)[i].OfferCode < (*list)[j].OfferCode })
	return nil
}

// Find returns the entry for offerCode in region/section.
func (d *Document) Find(region string, section Section, offerCode string) (Entry, bool) {
	r, ok := d.Regions[region]
	if !ok || r == nil {
		return Entry{}, false
	}
	list, err := r.section(section)
	if err != nil {
		return Entry{}, false
	}
	for _, e := range *list {
		if e.OfferCode == offerCode {
			return e, true
		}
	}
	return Entry{}, false
}

// Remove deletes the entry for offerCode from region/section and reports
// whether it was present.
func (d *Document) Remove(region string, section Section, offerCode string) bool {
	r, ok := d.Regions[region]
	if !ok || r == nil {
		return false
	}
	list, err := r.section(section)
	if err != nil {
		return false
	}
	for i, e := range *list {
		if e.OfferCode == offerCode {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}
