package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"arbor/internal/service"

	"github.com/gofiber/fiber/v2"
)

func TestResolveHostnameEndpoint(t *testing.T) {
	s, _, _ := setupTenantServer(t)
	app := fiber.New()
	app.Get("/resolve", s.ResolveHostname)

	lifecycleApp := tenantTestApp(s)
	created := submitRequest(t, lifecycleApp, "shop.example.com")
	resp, _ := lifecycleApp.Test(httptest.NewRequest(http.MethodPost, fmt.Sprintf("/requests/%d/approve", created.ID), nil))
	_ = resp.Body.Close()

	cases := []struct {
		host string
		want uint
	}{
		{"shop.example.com", created.ID},
		{fmt.Sprintf("tenant-%d.arbor.app", created.ID), created.ID},
		{"localhost:8460", 0},
		{"arbor.app", 0},
		{"unknown.example.net", 0},
	}
	for _, tc := range cases {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/resolve?host="+tc.host, nil))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.host, resp.StatusCode)
		}
		var res service.Resolution
		decodeBody(t, resp, &res)
		if res.TenantID != tc.want {
			t.Fatalf("%s: expected tenant %d, got %d", tc.host, tc.want, res.TenantID)
		}
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/resolve", nil))
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without host, got %d", resp.StatusCode)
	}
}
