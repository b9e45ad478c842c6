//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/bissquit/status-garden/internal/domain"
	"github.com/bissquit/status-garden/internal/testutil"
	"github.com/google/uuid"
)

type orgEnvelope struct {
	Data domain.Organization `json:"data"`
}

type teamEnvelope struct {
	Data domain.Team `json:"data"`
}

type serviceEnvelope struct {
	Data domain.Service `json:"data"`
}

type incidentEnvelope struct {
	Data domain.Incident `json:"data"`
}

type updatesEnvelope struct {
	Data []domain.IncidentUpdate `json:"data"`
}

type maintenanceEnvelope struct {
	Data domain.Maintenance `json:"data"`
}

// tenant is a ready-made org/team/service fixture with one client per
// role. The owner principal owns the organization and has no explicit
// membership row.
type tenant struct {
	Org     domain.Organization
	Team    domain.Team
	Service domain.Service

	Owner  *testutil.Client
	Admin  *testutil.Client
	Member *testutil.Client
	Viewer *testutil.Client
}

// newTenant provisions a fresh organization with a team, a service,
// and admin/member/viewer memberships. Principal names are unique per
// call so tests do not interfere.
func newTenant(t *testing.T) *tenant {
	t.Helper()

	suffix := uuid.NewString()[:8]
	owner := "owner-" + suffix
	admin := "admin-" + suffix
	member := "member-" + suffix
	viewer := "viewer-" + suffix

	ownerClient := newTestClient(t, owner)

	org := createOrganization(t, ownerClient, "Acme "+suffix, "acme-"+suffix)
	team := createTeam(t, ownerClient, org.ID, "Platform", "platform-"+suffix)

	grantRole(t, ownerClient, team.ID, admin, "admin")
	grantRole(t, ownerClient, team.ID, member, "member")
	grantRole(t, ownerClient, team.ID, viewer, "viewer")

	service := createService(t, ownerClient, team.ID, "api")

	return &tenant{
		Org:     org,
		Team:    team,
		Service: service,
		Owner:   ownerClient,
		Admin:   newTestClient(t, admin),
		Member:  newTestClient(t, member),
		Viewer:  newTestClient(t, viewer),
	}
}

func createOrganization(t *testing.T, c *testutil.Client, name, slug string) domain.Organization {
	t.Helper()

	resp, err := c.POST("/api/v1/orgs", map[string]string{"name": name, "slug": slug})
	requireStatus(t, resp, err, http.StatusCreated)

	var env orgEnvelope
	testutil.DecodeJSON(t, resp, &env)
	return env.Data
}

func createTeam(t *testing.T, c *testutil.Client, orgID, name, slug string) domain.Team {
	t.Helper()

	resp, err := c.POST("/api/v1/orgs/"+orgID+"/teams", map[string]string{"name": name, "slug": slug})
	requireStatus(t, resp, err, http.StatusCreated)

	var env teamEnvelope
	testutil.DecodeJSON(t, resp, &env)
	return env.Data
}

func grantRole(t *testing.T, c *testutil.Client, teamID, principal, role string) {
	t.Helper()

	resp, err := c.PUT("/api/v1/teams/"+teamID+"/members/"+principal, map[string]string{"role": role})
	requireStatus(t, resp, err, http.StatusOK)
	_ = resp.Body.Close()
}

func createService(t *testing.T, c *testutil.Client, teamID, name string) domain.Service {
	t.Helper()

	resp, err := c.POST("/api/v1/teams/"+teamID+"/services", map[string]string{
		"name":        name,
		"description": "test service",
	})
	requireStatus(t, resp, err, http.StatusCreated)

	var env serviceEnvelope
	testutil.DecodeJSON(t, resp, &env)
	return env.Data
}

func createIncident(t *testing.T, c *testutil.Client, serviceID, severity string) domain.Incident {
	t.Helper()

	resp, err := c.POST("/api/v1/services/"+serviceID+"/incidents", map[string]string{
		"title":    "integration test incident",
		"severity": severity,
	})
	requireStatus(t, resp, err, http.StatusCreated)

	var env incidentEnvelope
	testutil.DecodeJSON(t, resp, &env)
	return env.Data
}

func getService(t *testing.T, c *testutil.Client, serviceID string) domain.Service {
	t.Helper()

	resp, err := c.GET("/api/v1/services/" + serviceID)
	requireStatus(t, resp, err, http.StatusOK)

	var env serviceEnvelope
	testutil.DecodeJSON(t, resp, &env)
	return env.Data
}

func requireStatus(t *testing.T, resp *http.Response, err error, want int) {
	t.Helper()

	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != want {
		body := testutil.ReadBody(t, resp)
		t.Fatalf("unexpected status: got %d, want %d, body: %s", resp.StatusCode, want, body)
	}
}

// futureTime returns now+d formatted for JSON request bodies.
func futureTime(d time.Duration) string {
	return time.Now().Add(d).UTC().Format(time.RFC3339)
}
