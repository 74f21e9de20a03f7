package server_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Harardin/nft-custody/internal/config"
	"github.com/Harardin/nft-custody/internal/events"
	"github.com/Harardin/nft-custody/internal/holder"
	"github.com/Harardin/nft-custody/internal/server"
	"github.com/Harardin/nft-custody/pkg/chain"
	"github.com/Harardin/nft-custody/pkg/log"
	"github.com/Harardin/nft-custody/pkg/prometheus"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const week = 7 * 24 * time.Hour

var (
	alice = chain.DeriveAddress("alice")
	bob   = chain.DeriveAddress("bob")
)

type client struct {
	t   *testing.T
	url string
}

func (c client) do(method, path string, from chain.Address, body any) (int, map[string]any) {
	c.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.url+path, reader)
	require.NoError(c.t, err)
	if !from.IsZero() {
		req.Header.Set("X-Caller", from.Hex())
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var res map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&res)

	return resp.StatusCode, res
}

func (c client) list(path string) []map[string]any {
	c.t.Helper()

	resp, err := http.Get(c.url + path)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	require.Equal(c.t, http.StatusOK, resp.StatusCode)

	var res []map[string]any
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&res))

	return res
}

func newServer(t *testing.T, opts ...server.Option) (*server.Server, client, *chain.ManualClock) {
	t.Helper()

	cfg := &config.Config{
		LocalConfig: config.LocalConfig{
			ServiceName: "nft-custody",
			StandName:   "local",
			HTTPPort:    "20001",
			Custody:     config.CustodyConfig{Timelock: week, Deployer: "owner", EventsBuffer: 16},
			Prometheus:  prometheus.Config{Disabled: true},
		},
	}

	clock := chain.NewManualClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	srv, err := server.New(log.NewNop(), cfg, append(opts, server.WithClock(clock))...)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return srv, client{t: t, url: ts.URL}, clock
}

func TestCustodyFlow(t *testing.T) {
	external := events.NewRecorder(0)
	srv, c, clock := newServer(t, server.WithSink(external))

	vaultAddr := srv.Vault().Address().Hex()

	status, res := c.do(http.MethodPost, "/tokens/mint", alice, map[string]int{"count": 5})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{1.0, 2.0, 3.0, 4.0, 5.0}, res["token_ids"])

	status, _ = c.do(http.MethodPost, "/tokens/mint", bob, map[string]int{"count": 5})
	require.Equal(t, http.StatusOK, status)

	t.Run("deposit without approval", func(t *testing.T) {
		status, res := c.do(http.MethodPost, "/vault/deposit", alice, map[string]int{"token_id": 3})
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "ERC721: transfer caller is not owner nor approved", res["error"])
	})

	for _, from := range []chain.Address{alice, bob} {
		status, res := c.do(http.MethodPost, "/tokens/approval", from, map[string]any{"operator": vaultAddr, "approved": true})
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, true, res["approved"])
	}

	status, res = c.do(http.MethodPost, "/vault/deposit", alice, map[string]int{"token_id": 3})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, alice.Hex(), res["depositor"])

	status, _ = c.do(http.MethodPost, "/vault/deposit", bob, map[string]int{"token_id": 7})
	require.Equal(t, http.StatusOK, status)

	tt := []struct {
		name     string
		method   string
		path     string
		from     chain.Address
		body     any
		status   int
		key      string
		expected any
	}{
		{
			name: "raw owner is vault", method: http.MethodGet, path: "/tokens/3/owner",
			status: http.StatusOK, key: "owner", expected: vaultAddr,
		},
		{
			name: "consumer resolves depositor", method: http.MethodGet, path: "/consumer/owner/3",
			status: http.StatusOK, key: "owner", expected: alice.Hex(),
		},
		{
			name: "consumer plain owner", method: http.MethodGet, path: "/consumer/owner/1",
			status: http.StatusOK, key: "owner", expected: alice.Hex(),
		},
		{
			name: "consumer nonexistent token", method: http.MethodGet, path: "/consumer/owner/42",
			status: http.StatusNotFound, key: "error", expected: "ERC721: owner query for nonexistent token",
		},
		{
			name: "balance without holders", method: http.MethodGet, path: "/consumer/balance/" + alice.Hex(),
			status: http.StatusOK, key: "balance", expected: 4.0,
		},
		{
			name: "balance with vault", method: http.MethodGet, path: "/consumer/balance/" + alice.Hex() + "?holders=" + vaultAddr,
			status: http.StatusOK, key: "balance", expected: 5.0,
		},
		{
			name: "balance with plain account as holder", method: http.MethodGet, path: "/consumer/balance/" + alice.Hex() + "?holders=" + bob.Hex(),
			status: http.StatusBadRequest,
		},
		{
			name: "held owner", method: http.MethodGet, path: "/vault/held/7",
			status: http.StatusOK, key: "owner", expected: bob.Hex(),
		},
		{
			name: "held owner of another collection", method: http.MethodGet, path: "/vault/held/7?token=" + bob.Hex(),
			status: http.StatusBadRequest, key: "error", expected: "ERC721Vault: invalid token address",
		},
		{
			name: "held balance", method: http.MethodGet, path: "/vault/held-balance/" + alice.Hex(),
			status: http.StatusOK, key: "balance", expected: 1.0,
		},
		{
			name: "supports holder interface", method: http.MethodGet, path: "/vault/supports/" + holder.InterfaceID.Hex(),
			status: http.StatusOK, key: "supported", expected: true,
		},
		{
			name: "does not support invalid interface", method: http.MethodGet, path: "/vault/supports/0xffffffff",
			status: http.StatusOK, key: "supported", expected: false,
		},
		{
			name: "bad interface id", method: http.MethodGet, path: "/vault/supports/0x01",
			status: http.StatusBadRequest,
		},
		{
			name: "raw lock", method: http.MethodGet, path: "/vault/tokens/3",
			status: http.StatusOK, key: "unlock_at", expected: float64(clock.Now().Add(week).Unix()),
		},
		{
			name: "deposit of held token", method: http.MethodPost, path: "/vault/deposit", from: bob, body: map[string]int{"token_id": 3},
			status: http.StatusForbidden, key: "error", expected: "ERC721Vault: sender does not own token",
		},
		{
			name: "early withdraw", method: http.MethodPost, path: "/vault/withdraw", from: alice, body: map[string]int{"token_id": 3},
			status: http.StatusLocked, key: "error", expected: "ERC721Vault: token is locked",
		},
		{
			name: "withdraw without caller", method: http.MethodPost, path: "/vault/withdraw", body: map[string]int{"token_id": 3},
			status: http.StatusBadRequest,
		},
		{
			name: "mint nothing", method: http.MethodPost, path: "/tokens/mint", from: alice, body: map[string]int{"count": 0},
			status: http.StatusBadRequest,
		},
		{
			name: "bad token id", method: http.MethodGet, path: "/tokens/abc/owner",
			status: http.StatusBadRequest,
		},
		{
			name: "vault info", method: http.MethodGet, path: "/vault",
			status: http.StatusOK, key: "timelock_seconds", expected: week.Seconds(),
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			status, res := c.do(tc.method, tc.path, tc.from, tc.body)
			require.Equal(t, tc.status, status)
			if tc.key != "" {
				assert.Equal(t, tc.expected, res[tc.key])
			}
		})
	}

	assert.Len(t, c.list("/vault/holdings"), 2)

	clock.Advance(week)

	status, res = c.do(http.MethodPost, "/vault/withdraw", alice, map[string]int{"token_id": 3})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, alice.Hex(), res["owner"])

	status, res = c.do(http.MethodGet, "/tokens/3/owner", chain.ZeroAddress, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, alice.Hex(), res["owner"])

	status, res = c.do(http.MethodGet, "/vault/tokens/3", chain.ZeroAddress, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, chain.ZeroAddress.Hex(), res["owner"])
	assert.Equal(t, 0.0, res["unlock_at"])

	recorded := c.list("/events")
	require.Len(t, recorded, 3)
	assert.Equal(t, "Hold", recorded[0]["kind"])
	assert.Equal(t, "Release", recorded[2]["kind"])

	require.Len(t, external.Events(), 3)
	assert.Equal(t, events.KindRelease, external.Events()[2].Kind)

	ops := srv.Metrics().Operations()
	assert.Equal(t, 2.0, testutil.ToFloat64(ops.WithLabelValues("deposit", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(ops.WithLabelValues("deposit", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("withdraw", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(ops.WithLabelValues("withdraw", "error")))
}

func TestTransfer(t *testing.T) {
	_, c, _ := newServer(t)

	status, _ := c.do(http.MethodPost, "/tokens/mint", alice, map[string]int{"count": 2})
	require.Equal(t, http.StatusOK, status)

	status, res := c.do(http.MethodPost, "/tokens/transfer", bob, map[string]any{"from": alice.Hex(), "to": bob.Hex(), "token_id": 1})
	require.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "ERC721: transfer caller is not owner nor approved", res["error"])

	status, _ = c.do(http.MethodPost, "/tokens/transfer", alice, map[string]any{"from": alice.Hex(), "to": bob.Hex(), "token_id": 1})
	require.Equal(t, http.StatusOK, status)

	status, res = c.do(http.MethodGet, "/accounts/"+bob.Hex()+"/balance", chain.ZeroAddress, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1.0, res["balance"])

	status, _ = c.do(http.MethodPost, "/tokens/transfer", alice, map[string]any{"from": alice.Hex(), "to": chain.ZeroAddress.Hex(), "token_id": 2})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = c.do(http.MethodGet, "/health", chain.ZeroAddress, nil)
	require.Equal(t, http.StatusOK, status)
}

func TestZeroCallerRejected(t *testing.T) {
	srv, c, _ := newServer(t)

	status, _ := c.do(http.MethodPost, "/tokens/mint", bob, map[string]int{"count": 1})
	require.Equal(t, http.StatusOK, status)

	body := []byte(`{"from":"` + bob.Hex() + `","to":"` + alice.Hex() + `","token_id":1}`)
	req, err := http.NewRequest(http.MethodPost, c.url+"/tokens/transfer", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-Caller", chain.ZeroAddress.Hex())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var res map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "X-Caller must not be zero address", res["error"])

	owner, err := srv.Token().OwnerOf(1)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)
}

func TestNeedsRestart(t *testing.T) {
	tt := []struct {
		name     string
		changed  []string
		expected bool
	}{
		{name: "http port changed", changed: []string{"LOG_LEVEL", "HTTP_PORT"}, expected: true},
		{name: "unrelated keys", changed: []string{"NOTIFY_URL", "CUSTODY_TIMELOCK"}},
		{name: "nothing changed"},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, server.NeedsRestart(tc.changed))
		})
	}
}
