package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestIdentityAndClientIP(t *testing.T) {
	var gotUser, gotIP string
	h := Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserID(r)
		gotIP = getClientIP(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserHeader, " inspector-3 ")
	req.Header.Set("X-Forwarded-For", "10.0.0.9, 172.16.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "inspector-3", gotUser)
	assert.Equal(t, "10.0.0.9", gotIP)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.4:5555"
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Empty(t, gotUser)
	assert.Equal(t, "192.168.1.4", gotIP)
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/schools", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-User-ID")

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestRecoveryAndLogger(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Recovery, RequestLogger)
	r.HandleFunc("/boom/{id}", func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})
	r.HandleFunc("/teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom/42", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teapot", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
