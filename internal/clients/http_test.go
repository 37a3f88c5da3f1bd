package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"novafreight-system/config"
	"novafreight-system/internal/platform/apierr"
)

func testClients(t *testing.T, url string) *ServiceClients {
	t.Helper()
	c := NewServiceClients(config.ServicesConfig{
		UserURL:    url,
		CargoURL:   url,
		StorageURL: url,
		MissionURL: url,
	})
	t.Cleanup(c.Close)
	return c
}

func TestDirectory_ExistsByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/users/42/exists" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"message":"ok","data":{"exists":true}}`))
	}))
	defer srv.Close()

	dir := NewDirectory(testClients(t, srv.URL).User, "users")

	exists, err := dir.ExistsByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !exists {
		t.Error("expected exists=true")
	}
}

func TestDirectory_MissingEntity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"message":"ok","data":{"exists":false}}`))
	}))
	defer srv.Close()

	dir := NewDirectory(testClients(t, srv.URL).Cargo, "cargo")

	exists, err := dir.ExistsByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if exists {
		t.Error("expected exists=false")
	}
}

func TestDirectory_ServerErrorSurfacesAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"message":"database error"}`))
	}))
	defer srv.Close()

	dir := NewDirectory(testClients(t, srv.URL).User, "users")

	if _, err := dir.ExistsByID(context.Background(), 1); err == nil {
		t.Fatal("expected error from 500 response")
	}
}

func TestDirectory_UnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	dir := NewDirectory(testClients(t, srv.URL).User, "users")

	if _, err := dir.ExistsByID(context.Background(), 1); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestCargoClient_ResolvesFootprint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/cargo/7" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"message":"ok","data":{"id":7,"name":"water cells","mass_per_unit":"2.5","volume_per_unit":"0.05"}}`))
	}))
	defer srv.Close()

	cargo := NewCargoClient(testClients(t, srv.URL).Cargo)

	info, err := cargo.CargoByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if info.Name != "water cells" {
		t.Errorf("unexpected name %q", info.Name)
	}
	if info.MassPerUnit.String() != "2.5" || info.VolumePerUnit.String() != "0.05" {
		t.Errorf("unexpected footprint %s/%s", info.MassPerUnit, info.VolumePerUnit)
	}
}

func TestCargoClient_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"message":"Cargo not found"}`))
	}))
	defer srv.Close()

	cargo := NewCargoClient(testClients(t, srv.URL).Cargo)

	_, err := cargo.CargoByID(context.Background(), 999)
	if !apierr.IsCode(err, apierr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestCargoClient_MalformedFootprint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"message":"ok","data":{"id":7,"name":"x","mass_per_unit":"not-a-number","volume_per_unit":"0.05"}}`))
	}))
	defer srv.Close()

	cargo := NewCargoClient(testClients(t, srv.URL).Cargo)

	if _, err := cargo.CargoByID(context.Background(), 7); err == nil {
		t.Fatal("expected error for malformed decimal")
	}
}
