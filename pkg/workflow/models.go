package workflow

// Store-record models for the entities the workflow reads and mutates.
// Nested references are decoded only to the depth the workflow needs.

// User is the requester identity on an access request.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Application is the developer application requesting access.
type Application struct {
	ID    string `json:"id"`
	AppID string `json:"appId"`
	Name  string `json:"name,omitempty"`
}

// Product groups environments under a namespace.
type Product struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Namespace string `json:"namespace"`
}

// EntityRef is a bare reference to another record.
type EntityRef struct {
	ID string `json:"id"`
}

// Environment is a deployable surface of a product.
type Environment struct {
	ID               string     `json:"id"`
	AppID            string     `json:"appId"`
	Name             string     `json:"name"`
	Active           bool       `json:"active,omitempty"`
	Flow             string     `json:"flow"`
	Approval         bool       `json:"approval,omitempty"`
	Product          *Product   `json:"product,omitempty"`
	CredentialIssuer *EntityRef `json:"credentialIssuer,omitempty"`
}

// Namespace returns the product namespace the environment belongs to.
func (e *Environment) Namespace() string {
	if e.Product == nil {
		return ""
	}
	return e.Product.Namespace
}

// CredentialIssuer describes how credentials are minted for environments
// that reference it. EnvironmentDetails is a serialized list of
// IssuerEnvironmentConfig entries.
type CredentialIssuer struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Flow               string `json:"flow,omitempty"`
	Mode               string `json:"mode,omitempty"`
	ClientRegistration string `json:"clientRegistration,omitempty"`
	AvailableScopes    string `json:"availableScopes,omitempty"`
	ClientRoles        string `json:"clientRoles,omitempty"`
	EnvironmentDetails string `json:"environmentDetails,omitempty"`
}

// ConsumerRef is the stored gateway-consumer record a service access links to.
type ConsumerRef struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	CustomID      string `json:"customId,omitempty"`
	ExtForeignKey string `json:"extForeignKey,omitempty"`
}

// ServiceAccess is the realized grant linking a gateway consumer to a
// product environment.
type ServiceAccess struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Active       bool         `json:"active"`
	Flow         string       `json:"flow,omitempty"`
	ConsumerType string       `json:"consumerType,omitempty"`
	Consumer     *ConsumerRef `json:"consumer,omitempty"`
}

// AccessRequest is a developer's request for access to an environment.
type AccessRequest struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	IsApproved         bool           `json:"isApproved"`
	IsIssued           bool           `json:"isIssued"`
	IsComplete         bool           `json:"isComplete"`
	Controls           string         `json:"controls,omitempty"`
	Requestor          *User          `json:"requestor,omitempty"`
	Application        *Application   `json:"application,omitempty"`
	ProductEnvironment *Environment   `json:"productEnvironment,omitempty"`
	ServiceAccess      *ServiceAccess `json:"serviceAccess,omitempty"`
}

// NamespaceScope names one permission scope of a namespace.
type NamespaceScope struct {
	Name string `json:"name"`
}

// Namespace is the profile surface exposed by the namespace API.
type Namespace struct {
	Name          string           `json:"name"`
	Scopes        []NamespaceScope `json:"scopes,omitempty"`
	PermDomains   []string         `json:"permDomains,omitempty"`
	PermDataPlane string           `json:"permDataPlane,omitempty"`
	PermProtected string           `json:"permProtected,omitempty"`
}
