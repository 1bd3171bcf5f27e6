package tracker

import "testing"

func TestDetectInstanceType(t *testing.T) {
	tests := []struct {
		url  string
		want InstanceType
	}{
		{"https://acme.atlassian.net", InstanceCloud},
		{"https://acme.atlassian.net/", InstanceCloud},
		{"https://ACME.Atlassian.NET", InstanceCloud},
		{"https://acme.atlassian.net:443/context", InstanceCloud},
		{"https://jira.internal.example.com", InstanceServer},
		{"http://localhost:8080", InstanceServer},
		{"https://atlassian.net.evil.com", InstanceServer},
	}
	for _, tt := range tests {
		if got := DetectInstanceType(tt.url); got != tt.want {
			t.Errorf("DetectInstanceType(%q) = %s, want %s", tt.url, got, tt.want)
		}
	}
}

func TestAPIVersion(t *testing.T) {
	if got := InstanceCloud.APIVersion(); got != "3" {
		t.Errorf("cloud API version = %s, want 3", got)
	}
	if got := InstanceServer.APIVersion(); got != "2" {
		t.Errorf("server API version = %s, want 2", got)
	}
}

func TestRawFields(t *testing.T) {
	issue := IssueDTO{Raw: []byte(`{"fields":{"customfield_10016":5.0,"summary":"x"}}`)}
	fields := issue.RawFields()
	if fields["customfield_10016"] != 5.0 {
		t.Errorf("expected custom field 5.0, got %v", fields["customfield_10016"])
	}

	empty := IssueDTO{}
	if got := empty.RawFields(); len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
}
