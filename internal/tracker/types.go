// Package tracker provides authenticated, rate-limited HTTP access to a
// Jira-style issue tracker (Cloud or Server).
//
// One method call is one authenticated, rate-aware, retry-aware request
// (plus transparent pagination). All methods accept a context and abort
// in-flight HTTP on cancellation.
package tracker

import (
	"encoding/json"
	"strings"
	"time"
)

// InstanceType distinguishes hosted (Cloud) from self-managed (Server)
// tracker deployments. Cloud prefers REST API v3, Server v2.
type InstanceType string

const (
	InstanceCloud  InstanceType = "cloud"
	InstanceServer InstanceType = "server"
)

// cloudSuffix is the hosted-tenant hostname suffix of the tracker.
const cloudSuffix = ".atlassian.net"

// DetectInstanceType classifies a base URL by hostname suffix.
func DetectInstanceType(baseURL string) InstanceType {
	host := baseURL
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/:"); i >= 0 {
		host = host[:i]
	}
	if strings.HasSuffix(strings.ToLower(host), cloudSuffix) {
		return InstanceCloud
	}
	return InstanceServer
}

// APIVersion returns the preferred REST API version for the instance type.
func (t InstanceType) APIVersion() string {
	if t == InstanceCloud {
		return "3"
	}
	return "2"
}

// AuthMethod selects how requests are authenticated.
type AuthMethod string

const (
	// AuthToken uses email+token Basic auth on Cloud, Bearer on Server.
	AuthToken AuthMethod = "token"
	// AuthBasic uses username+password Basic auth.
	AuthBasic AuthMethod = "basic"
	// AuthOAuth uses a provider-parameterized OAuth config map.
	AuthOAuth AuthMethod = "oauth"
)

// SprintDTO is a tracker sprint as returned by the agile API.
type SprintDTO struct {
	ID            int64      `json:"id"`
	Self          string     `json:"self,omitempty"`
	State         string     `json:"state"` // normalized to lowercase
	Name          string     `json:"name"`
	Goal          string     `json:"goal,omitempty"`
	StartDate     *time.Time `json:"startDate,omitempty"`
	EndDate       *time.Time `json:"endDate,omitempty"`
	CompleteDate  *time.Time `json:"completeDate,omitempty"`
	OriginBoardID int64      `json:"originBoardId,omitempty"`
}

// UserDTO is a tracker user reference.
type UserDTO struct {
	AccountID    string `json:"accountId,omitempty"`
	Name         string `json:"name,omitempty"`
	DisplayName  string `json:"displayName,omitempty"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

// NamedDTO covers the tracker's {id, name} field objects (status, priority,
// issue type, resolution).
type NamedDTO struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// IssueFieldsDTO holds the typed common fields of an issue. Custom fields
// stay in IssueDTO.Raw for the field mapper.
type IssueFieldsDTO struct {
	Summary     string     `json:"summary"`
	Status      *NamedDTO  `json:"status,omitempty"`
	Priority    *NamedDTO  `json:"priority,omitempty"`
	IssueType   *NamedDTO  `json:"issuetype,omitempty"`
	Assignee    *UserDTO   `json:"assignee,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	StoryPoints *float64   `json:"-"` // extracted from the configured custom field
	Created     string     `json:"created,omitempty"`
	Updated     string     `json:"updated,omitempty"`
	Resolution  *NamedDTO  `json:"resolution,omitempty"`
	Parent      *IssueRef  `json:"parent,omitempty"`
	Components  []NamedDTO `json:"components,omitempty"`
}

// IssueRef is a minimal reference to another issue.
type IssueRef struct {
	ID  string `json:"id,omitempty"`
	Key string `json:"key"`
}

// IssueDTO is a tracker issue. Raw preserves the full fields payload for
// the field mapper; the typed fields cover what sync and analytics consume
// directly.
type IssueDTO struct {
	ID     string          `json:"id"`
	Key    string          `json:"key"`
	Self   string          `json:"self,omitempty"`
	Fields IssueFieldsDTO  `json:"fields"`
	Raw    json.RawMessage `json:"-"`
}

// RawFields decodes the preserved fields payload into a generic map for
// the field mapper. Returns an empty map when nothing was preserved.
func (i *IssueDTO) RawFields() map[string]interface{} {
	out := map[string]interface{}{}
	if len(i.Raw) == 0 {
		return out
	}
	var envelope struct {
		Fields map[string]interface{} `json:"fields"`
	}
	if err := json.Unmarshal(i.Raw, &envelope); err == nil && envelope.Fields != nil {
		return envelope.Fields
	}
	return out
}

// BoardDTO is a tracker board.
type BoardDTO struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Location struct {
		ProjectKey  string `json:"projectKey,omitempty"`
		ProjectName string `json:"projectName,omitempty"`
	} `json:"location,omitempty"`
}

// ProjectDTO is a tracker project.
type ProjectDTO struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// FieldDTO describes a tracker field, including custom fields.
type FieldDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Custom bool   `json:"custom"`
	Schema struct {
		Type string `json:"type,omitempty"`
	} `json:"schema,omitempty"`
}

// serverInfoDTO is the /serverInfo response; only used for TestConnection.
type serverInfoDTO struct {
	BaseURL        string `json:"baseUrl,omitempty"`
	Version        string `json:"version,omitempty"`
	DeploymentType string `json:"deploymentType,omitempty"`
}
