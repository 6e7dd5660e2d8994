package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/Surf-Wax/automated-secrets-management-poc/internal/cloud"
)

// VaultServer is an httptest stand-in for the secrets-management service.
// It implements just the endpoints the demonstration touches: sys/health,
// token lookup, sys/mounts, the AWS engine's config/root, static-roles
// and static-creds. Rotation is backed by an IAMStore so that rotated-out
// keys genuinely stop authenticating.
type VaultServer struct {
	URL string

	srv   *httptest.Server
	store *IAMStore
	token string

	mu         sync.Mutex
	mounts     map[string]bool
	configured map[string]bool
	roles      map[string]*staticRole
	autoRotate bool
	closed     chan struct{}
}

type staticRole struct {
	username  string
	period    time.Duration
	current   cloud.KeyPair
	rotations int
}

// NewVaultServer starts the mock server. With autoRotate set, each static
// role rotates on its configured period until the server is closed;
// otherwise call Rotate explicitly for deterministic tests.
func NewVaultServer(store *IAMStore, token string, autoRotate bool) *VaultServer {
	v := &VaultServer{
		store:      store,
		token:      token,
		mounts:     make(map[string]bool),
		configured: make(map[string]bool),
		roles:      make(map[string]*staticRole),
		autoRotate: autoRotate,
		closed:     make(chan struct{}),
	}
	v.srv = httptest.NewServer(http.HandlerFunc(v.handle))
	v.URL = v.srv.URL
	return v
}

// Close shuts the server down and stops any rotation timers.
func (v *VaultServer) Close() {
	close(v.closed)
	v.srv.Close()
}

// Rotate forces one rotation of a static role.
func (v *VaultServer) Rotate(mount, role string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rotateLocked(mount + "/" + role)
}

func (v *VaultServer) rotateLocked(key string) error {
	r, ok := v.roles[key]
	if !ok {
		return fmt.Errorf("no static role %s", key)
	}
	pair, err := v.store.RotateUserKey(r.username, r.current.AccessKeyID)
	if err != nil {
		return err
	}
	r.current = pair
	r.rotations++
	return nil
}

// Rotations reports how many times a role has rotated since creation.
func (v *VaultServer) Rotations(mount, role string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if r, ok := v.roles[mount+"/"+role]; ok {
		return r.rotations
	}
	return 0
}

// HasMount reports whether a secrets engine is mounted.
func (v *VaultServer) HasMount(mount string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mounts[mount]
}

// HasRole reports whether a static role exists.
func (v *VaultServer) HasRole(mount, role string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.roles[mount+"/"+role]
	return ok
}

func (v *VaultServer) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/")

	if path == "sys/health" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Header.Get("X-Vault-Token") != v.token {
		writeVaultError(w, http.StatusForbidden, "permission denied")
		return
	}

	switch {
	case path == "auth/token/lookup-self":
		writeJSON(w, map[string]interface{}{"data": map[string]interface{}{"id": "mock"}})

	case path == "sys/mounts" && r.Method == "GET":
		v.mu.Lock()
		mounts := make(map[string]interface{})
		for m := range v.mounts {
			mounts[m+"/"] = map[string]string{"type": "aws"}
		}
		v.mu.Unlock()
		writeJSON(w, mounts)

	case strings.HasPrefix(path, "sys/mounts/") && r.Method == "POST":
		mount := strings.TrimPrefix(path, "sys/mounts/")
		v.mu.Lock()
		v.mounts[mount] = true
		v.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)

	case strings.HasSuffix(path, "/config/root") && r.Method == "POST":
		mount := strings.TrimSuffix(path, "/config/root")
		v.mu.Lock()
		defer v.mu.Unlock()
		if !v.mounts[mount] {
			writeVaultError(w, http.StatusNotFound, "no handler for route "+path)
			return
		}
		var body struct {
			AccessKey string `json:"access_key"`
			SecretKey string `json:"secret_key"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.AccessKey == "" || body.SecretKey == "" {
			writeVaultError(w, http.StatusBadRequest, "missing root credentials")
			return
		}
		v.configured[mount] = true
		w.WriteHeader(http.StatusNoContent)

	case strings.Contains(path, "/static-roles/") && r.Method == "POST":
		v.handleStaticRoleWrite(w, r, path)

	case strings.Contains(path, "/static-creds/") && r.Method == "GET":
		v.handleStaticCredsRead(w, path)

	default:
		writeVaultError(w, http.StatusNotFound, "no handler for route "+path)
	}
}

func (v *VaultServer) handleStaticRoleWrite(w http.ResponseWriter, r *http.Request, path string) {
	parts := strings.SplitN(path, "/static-roles/", 2)
	mount, name := parts[0], parts[1]

	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.configured[mount] {
		// The real engine refuses static roles before root credentials
		// are in place; provisioning order matters.
		writeVaultError(w, http.StatusBadRequest, "aws engine root credentials not configured")
		return
	}

	var body struct {
		Username       string `json:"username"`
		RotationPeriod string `json:"rotation_period"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Username == "" {
		writeVaultError(w, http.StatusBadRequest, "missing username")
		return
	}

	period, err := time.ParseDuration(body.RotationPeriod)
	if err != nil || period <= 0 {
		writeVaultError(w, http.StatusBadRequest, "invalid rotation_period")
		return
	}

	// The engine takes ownership of the user's keys at role creation.
	pair, err := v.store.RotateUserKey(body.Username, "")
	if err != nil {
		writeVaultError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := mount + "/" + name
	v.roles[key] = &staticRole{username: body.Username, period: period, current: pair}

	if v.autoRotate {
		go v.rotateLoop(key, period)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (v *VaultServer) rotateLoop(key string, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-v.closed:
			return
		case <-ticker.C:
			v.mu.Lock()
			_ = v.rotateLocked(key)
			v.mu.Unlock()
		}
	}
}

func (v *VaultServer) handleStaticCredsRead(w http.ResponseWriter, path string) {
	parts := strings.SplitN(path, "/static-creds/", 2)
	mount, name := parts[0], parts[1]

	v.mu.Lock()
	defer v.mu.Unlock()

	role, ok := v.roles[mount+"/"+name]
	if !ok {
		writeVaultError(w, http.StatusNotFound, "role not found")
		return
	}

	writeJSON(w, map[string]interface{}{
		"lease_id":       fmt.Sprintf("%s/static-creds/%s/lease-%d", mount, name, role.rotations),
		"lease_duration": int(role.period.Seconds()),
		"data": map[string]interface{}{
			"access_key": role.current.AccessKeyID,
			"secret_key": role.current.SecretAccessKey,
			"ttl":        int(role.period.Seconds()),
		},
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeVaultError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string][]string{"errors": {msg}})
}
