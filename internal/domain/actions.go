package domain

// Runner is a self-hosted Actions runner registered to an organization or repository
type Runner struct {
	ID     int64
	Name   string
	OS     string
	Status string
	Busy   bool
	Labels []string
}

// Secret is an Actions secret of an organization, repository or environment.
// Values are never readable.
type Secret struct {
	Name       string
	Visibility string
}

// Variable is an Actions variable of an organization, repository or environment
type Variable struct {
	Name       string
	Value      string
	Visibility string
}

// Environment is a deployment environment of a repository
type Environment struct {
	ID        int64
	Name      string
	URL       string
	CreatedAt string
	UpdatedAt string
	// DeploymentBranchPolicy is the policy as JSON, empty when unrestricted
	DeploymentBranchPolicy string
	CanAdminsBypass        *bool
	WaitTimer              *int
	Reviewers              []EnvironmentReviewer
}

// EnvironmentReviewer is a user or team whose approval a deployment requires
type EnvironmentReviewer struct {
	ID    int64
	Login string // team slug for teams
	Name  string
	Type  string // "User" or "Team"
}

// EnvironmentInventory groups an environment with its variables and secret names
type EnvironmentInventory struct {
	Environment *Environment
	Variables   []*Variable
	Secrets     []*Secret
}
