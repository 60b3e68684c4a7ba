package enums

// Environment names a target environment of the external systems.
type Environment string

const (
	EnvironmentStaging    Environment = "staging"
	EnvironmentProduction Environment = "production"
)

// String implements fmt.Stringer.
func (e Environment) String() string {
	return string(e)
}
