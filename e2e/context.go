package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// TestContext carries HTTP state between the steps of one scenario.
type TestContext struct {
	baseURL string
	client  *http.Client
	runID   string

	adminEmail    string
	adminPassword string

	lastStatus int
	lastBody   []byte
	lastHeader http.Header

	tokens   map[string]string
	vars     map[string]string
	bearer   string
	clientIP string
	scenario int
}

// NewTestContext reads the target from KVAULT_E2E_URL and the seeded admin
// from KVAULT_E2E_ADMIN_EMAIL / KVAULT_E2E_ADMIN_PASSWORD.
func NewTestContext() *TestContext {
	return &TestContext{
		baseURL:       strings.TrimRight(envOr("KVAULT_E2E_URL", "http://localhost:8080"), "/"),
		client:        &http.Client{Timeout: 15 * time.Second},
		runID:         strconv.FormatInt(time.Now().UnixNano(), 36),
		adminEmail:    envOr("KVAULT_E2E_ADMIN_EMAIL", "admin@example.com"),
		adminPassword: envOr("KVAULT_E2E_ADMIN_PASSWORD", "admin-password"),
		tokens:        map[string]string{},
		vars:          map[string]string{},
	}
}

func (tc *TestContext) reset() {
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.lastHeader = nil
	tc.tokens = map[string]string{}
	tc.vars = map[string]string{}
	tc.bearer = ""
	tc.scenario++
	tc.clientIP = scenarioIP(tc.scenario)
	tc.runID = strconv.FormatInt(time.Now().UnixNano(), 36)
}

// scenarioIP gives every scenario its own client address so the public route
// limiter counts them separately.
func scenarioIP(n int) string {
	return fmt.Sprintf("10.77.%d.%d", (n/250)%250, n%250+1)
}

func (tc *TestContext) AdminCredentials() (string, string) {
	return tc.adminEmail, tc.adminPassword
}

// Unique suffixes a name with the scenario run id so reruns against the same
// deployment do not collide on unique emails or region names.
func (tc *TestContext) Unique(name string) string {
	if at := strings.IndexByte(name, '@'); at > 0 {
		return name[:at] + "+" + tc.runID + name[at:]
	}
	return name + "-" + tc.runID
}

func (tc *TestContext) SetToken(label, token string) { tc.tokens[label] = token }

func (tc *TestContext) Token(label string) (string, error) {
	tok, ok := tc.tokens[label]
	if !ok {
		return "", fmt.Errorf("no token stored for %q", label)
	}
	return tok, nil
}

// ActAs makes subsequent requests carry the bearer token stored for label.
// An empty label sends requests anonymously.
func (tc *TestContext) ActAs(label string) error {
	if label == "" {
		tc.bearer = ""
		return nil
	}
	tok, err := tc.Token(label)
	if err != nil {
		return err
	}
	tc.bearer = tok
	return nil
}

func (tc *TestContext) UseBearer(token string) { tc.bearer = token }

func (tc *TestContext) SetClientIP(ip string) { tc.clientIP = ip }

func (tc *TestContext) Set(key, value string) { tc.vars[key] = value }

func (tc *TestContext) Get(key string) (string, error) {
	v, ok := tc.vars[key]
	if !ok {
		return "", fmt.Errorf("variable %q not set", key)
	}
	return v, nil
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.do(http.MethodGet, path, nil, "", headers)
}

func (tc *TestContext) DELETE(path string) error {
	return tc.do(http.MethodDelete, path, nil, "", nil)
}

func (tc *TestContext) POST(path string, body interface{}) error {
	return tc.sendJSON(http.MethodPost, path, body)
}

func (tc *TestContext) PUT(path string, body interface{}) error {
	return tc.sendJSON(http.MethodPut, path, body)
}

// Multipart posts fields plus a single "file" part.
func (tc *TestContext) Multipart(path string, fields map[string]string, fileName string, content []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			return err
		}
		if _, err := part.Write(content); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}
	return tc.do(http.MethodPost, path, &buf, mw.FormDataContentType(), nil)
}

func (tc *TestContext) sendJSON(method, path string, body interface{}) error {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		r = bytes.NewReader(raw)
	}
	return tc.do(method, path, r, "application/json", nil)
}

func (tc *TestContext) do(method, path string, body io.Reader, contentType string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(context.Background(), method, tc.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tc.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+tc.bearer)
	}
	if tc.clientIP != "" {
		req.Header.Set("X-Forwarded-For", tc.clientIP)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastHeader = resp.Header
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) GetLastResponseStatus() int { return tc.lastStatus }
func (tc *TestContext) GetLastResponseBody() []byte { return tc.lastBody }
func (tc *TestContext) GetLastResponseHeader() http.Header { return tc.lastHeader }

// GetResponseField reads a top-level or dotted field ("user.role") from the
// last JSON response.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	var doc interface{}
	if err := json.Unmarshal(tc.lastBody, &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w (body: %s)", err, tc.lastBody)
	}
	cur := doc
	for _, key := range strings.Split(field, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field %q: %v is not an object", field, cur)
		}
		cur, ok = obj[key]
		if !ok {
			return nil, fmt.Errorf("field %q missing in response: %s", field, tc.lastBody)
		}
	}
	return cur, nil
}

// GetResponseList decodes the last response as a JSON array of objects.
func (tc *TestContext) GetResponseList() ([]map[string]interface{}, error) {
	var list []map[string]interface{}
	if err := json.Unmarshal(tc.lastBody, &list); err != nil {
		return nil, fmt.Errorf("response is not a JSON array: %w (body: %s)", err, tc.lastBody)
	}
	return list, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
