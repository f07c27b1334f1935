//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"housing_sync/internal/domain"
	mysqlrepo "housing_sync/internal/storage/mysql"
)

// ---------- small helpers ----------

func migrationsDir(t *testing.T) string {
	t.Helper()
	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = filepath.Join("..", "..", "..", "migrations")
	}
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		t.Fatalf("MIGRATIONS_DIR=%s is not a directory or missing", dir)
	}
	return dir
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := migrationsDir(t)
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)
	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}
	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=housing",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/housing?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		resource.GetPort("3306/tcp"))
	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	applyMigrations(t, db)
	return db
}

// ---------- the test ----------

func TestRepo_MySQL_PropertiesPhotosUsers(t *testing.T) {
	repo := mysqlrepo.New(startMySQL(t))
	ctx := context.Background()

	created, err := repo.CreateProperty(ctx, domain.Property{
		Title: "Naguru Villa", Description: "Pool", Price: 2500000, Currency: domain.CurrencyUGX,
		Bedrooms: 4, Bathrooms: 3,
		Location:  domain.Location{Address: "Naguru", District: "Kampala", Latitude: 0.34, Longitude: 32.6},
		Amenities: []string{"WiFi", "Pool"},
		Images:    []string{"https://img.example/villa.jpg"},
		Landlord:  domain.Landlord{ID: "7", Name: "Sarah", Phone: "+256700000007", Verified: true},
		Available: true,
	})
	if err != nil {
		t.Fatalf("CreateProperty: %v", err)
	}
	if created.ID == "" || created.Price != 2500000 || created.Location.District != "Kampala" {
		t.Fatalf("unexpected created property: %+v", created)
	}

	if _, err := repo.AddPhoto(ctx, created.ID, domain.StoredPhoto{ID: "up-1", FileName: "a.jpg", MIMEType: "image/jpeg", Data: []byte("jpeg")}); err != nil {
		t.Fatalf("AddPhoto: %v", err)
	}
	if _, err := repo.AddPhoto(ctx, created.ID, domain.StoredPhoto{ID: "up-1", FileName: "a.jpg", MIMEType: "image/jpeg", Data: []byte("jpeg")}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate AddPhoto: want ErrConflict, got %v", err)
	}

	got, err := repo.GetProperty(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetProperty: %v", err)
	}
	want := []string{"https://img.example/villa.jpg", domain.PhotoURL(created.ID, "up-1")}
	if fmt.Sprint(got.Images) != fmt.Sprint(want) {
		t.Fatalf("images = %v, want %v", got.Images, want)
	}
	ph, err := repo.GetPhoto(ctx, created.ID, "up-1")
	if err != nil || string(ph.Data) != "jpeg" {
		t.Fatalf("GetPhoto: %+v %v", ph, err)
	}

	got.Title = "Naguru Villa (renovated)"
	got.Available = false
	upd, err := repo.UpdateProperty(ctx, got)
	if err != nil {
		t.Fatalf("UpdateProperty: %v", err)
	}
	if upd.Title != "Naguru Villa (renovated)" || upd.Available || len(upd.Images) != 2 {
		t.Fatalf("unexpected update: %+v", upd)
	}

	list, err := repo.ListProperties(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListProperties: %v %v", list, err)
	}

	if err := repo.DeleteProperty(ctx, created.ID); err != nil {
		t.Fatalf("DeleteProperty: %v", err)
	}
	if _, err := repo.GetProperty(ctx, created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted property: want ErrNotFound, got %v", err)
	}
	if _, err := repo.GetPhoto(ctx, created.ID, "up-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("photo survived cascade: %v", err)
	}

	u, err := repo.CreateUser(ctx, domain.UserRecord{
		User:         domain.User{Name: "Sarah", Email: "sarah@example.com", Role: domain.RoleLandlord},
		PasswordHash: []byte("$2a$04$hash"),
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := repo.CreateUser(ctx, domain.UserRecord{User: domain.User{Name: "x", Email: "sarah@example.com", Role: domain.RoleTenant}, PasswordHash: []byte("h")}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate email: want ErrConflict, got %v", err)
	}
	rec, err := repo.GetUserByEmail(ctx, "sarah@example.com")
	if err != nil || rec.ID != u.ID || string(rec.PasswordHash) != "$2a$04$hash" {
		t.Fatalf("GetUserByEmail: %+v %v", rec, err)
	}
	if _, err := repo.GetUserByID(ctx, "abc"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("bad id: want ErrNotFound, got %v", err)
	}
}
