package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vmledger/pkg/api"
	"vmledger/pkg/cache"
	"vmledger/pkg/ingress"
	"vmledger/pkg/ledger"
	"vmledger/pkg/xnats"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	authority = ledger.DeriveAddress([]byte("authority"))
	asset     = ledger.DeriveAddress([]byte("asset"))
	buyer     = ledger.DeriveAddress([]byte("buyer"))
)

const buyerToken = "buyer-token"

type fakeJS struct {
	reqs []xnats.OpReq
	subj []string
}

func (f *fakeJS) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	var req xnats.OpReq
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	f.reqs = append(f.reqs, req)
	f.subj = append(f.subj, subj)
	return &nats.PubAck{Stream: "VM", Sequence: uint64(len(f.reqs))}, nil
}

func setupRouter(t *testing.T) (*gin.Engine, *fakeJS, *cache.Cache) {
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	c := cache.New(client, time.Minute)

	js := &fakeJS{}
	ing := ingress.New("VM", "")
	ing.Nats = js

	keys, err := api.ParseKeys(map[string]string{buyerToken: buyer.String()})
	require.NoError(t, err)

	router := gin.New()
	api.NewHandler(ing, c, keys).RegisterRoutes(router)
	return router, js, c
}

func do(router *gin.Engine, method, url, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestParseKeys(t *testing.T) {
	_, err := api.ParseKeys(map[string]string{"k": "not-hex"})
	assert.ErrorIs(t, err, ledger.ErrInvalidAddress)
}

func TestSubmitNeedsToken(t *testing.T) {
	router, js, _ := setupRouter(t)
	machine := ledger.DeriveMachineID(authority, asset)
	body := gin.H{"authority": authority.String(), "amount": 3}

	w := do(router, http.MethodPost, "/api/v1/machines/"+machine.String()+"/buy", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodPost, "/api/v1/machines/"+machine.String()+"/buy", "wrong", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, js.reqs)
}

func TestSubmit(t *testing.T) {
	machine := ledger.DeriveMachineID(authority, asset)
	ticket := uuid.New()

	cases := []struct {
		name string
		url  string
		body interface{}
		op   xnats.Op
		test func(t *testing.T, req xnats.OpReq)
	}{
		{
			name: "create",
			url:  "/api/v1/machines",
			body: gin.H{"asset": asset.String(), "ppa": "10", "ppt": "5", "ticketAllocation": 100},
			op:   xnats.OpCreateMachine,
			test: func(t *testing.T, req xnats.OpReq) {
				assert.Equal(t, asset, req.Asset)
				require.NotNil(t, req.Create)
				assert.Equal(t, "10", req.Create.PPA.String())
				assert.Equal(t, uint64(100), req.Create.TicketAllocation)
			},
		},
		{
			name: "fund",
			url:  "/api/v1/machines/" + machine.String() + "/fund",
			body: gin.H{"asset": asset.String(), "amount": 1000},
			op:   xnats.OpFundMachine,
			test: func(t *testing.T, req xnats.OpReq) {
				assert.Equal(t, machine, req.Machine)
				assert.Equal(t, uint64(1000), req.Amount)
			},
		},
		{
			name: "buy ticket",
			url:  "/api/v1/machines/" + machine.String() + "/tickets",
			body: gin.H{"authority": authority.String(), "amount": 50},
			op:   xnats.OpBuyTicket,
			test: func(t *testing.T, req xnats.OpReq) {
				assert.Equal(t, authority, req.Authority)
				assert.Equal(t, uint64(50), req.Amount)
			},
		},
		{
			name: "redeem",
			url:  "/api/v1/tickets/" + ticket.String() + "/redeem",
			body: gin.H{"authority": authority.String(), "amount": 20},
			op:   xnats.OpBuySplWithTicket,
			test: func(t *testing.T, req xnats.OpReq) {
				assert.Equal(t, ticket, req.Ticket)
			},
		},
		{
			name: "buy",
			url:  "/api/v1/machines/" + machine.String() + "/buy",
			body: gin.H{"authority": authority.String(), "amount": 3},
			op:   xnats.OpBuySpl,
			test: func(t *testing.T, req xnats.OpReq) {
				assert.Equal(t, machine, req.Machine)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, js, _ := setupRouter(t)

			w := do(router, http.MethodPost, tc.url, buyerToken, tc.body)
			require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

			var resp api.SubmitResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.op, resp.Op)
			assert.Equal(t, uint64(1), resp.Seq)

			require.Len(t, js.reqs, 1)
			req := js.reqs[0]
			assert.Equal(t, resp.ID, req.ID)
			assert.Equal(t, buyer, req.Signer)
			assert.Equal(t, "VM."+string(tc.op), js.subj[0])
			tc.test(t, req)
		})
	}
}

func TestSubmitBadRequest(t *testing.T) {
	router, js, _ := setupRouter(t)
	machine := ledger.DeriveMachineID(authority, asset)

	t.Run("invalid json", func(t *testing.T) {
		w := do(router, http.MethodPost, "/api/v1/machines/"+machine.String()+"/buy", buyerToken, "{")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing authority", func(t *testing.T) {
		w := do(router, http.MethodPost, "/api/v1/machines/"+machine.String()+"/buy", buyerToken, gin.H{"amount": 3})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid machine id", func(t *testing.T) {
		w := do(router, http.MethodPost, "/api/v1/machines/xyz/buy", buyerToken, gin.H{"authority": authority.String(), "amount": 3})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid ticket id", func(t *testing.T) {
		w := do(router, http.MethodPost, "/api/v1/tickets/xyz/redeem", buyerToken, gin.H{"authority": authority.String(), "amount": 3})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	assert.Empty(t, js.reqs)
}

func TestQueries(t *testing.T) {
	router, _, c := setupRouter(t)
	ctx := context.Background()

	m := ledger.Machine{Authority: authority, Asset: asset, SupplyStock: 970, TicketAllocation: 70, TicketsSold: 1, PPA: 10, PPT: 5, Ready: true}
	tk := ledger.Ticket{ID: uuid.New(), Machine: m.ID(), Buyer: buyer, Unspent: 50, Spent: 30}
	r := xnats.Receipt{ID: tk.ID, Op: xnats.OpBuyTicket, Seq: 4, LogID: 4, OK: true, Ticket: &tk}
	require.NoError(t, c.Commit(ctx, &m, &tk, &r))

	t.Run("machine", func(t *testing.T) {
		w := do(router, http.MethodGet, "/api/v1/machines/"+m.ID().String(), "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got api.MachineView
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, m.ID(), got.ID)
		assert.Equal(t, "Funded", got.State)
		assert.Equal(t, m, got.Machine)
	})

	t.Run("machine tickets", func(t *testing.T) {
		w := do(router, http.MethodGet, "/api/v1/machines/"+m.ID().String()+"/tickets", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got []ledger.Ticket
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, []ledger.Ticket{tk}, got)
	})

	t.Run("no tickets", func(t *testing.T) {
		other := ledger.DeriveMachineID(buyer, asset)
		w := do(router, http.MethodGet, "/api/v1/machines/"+other.String()+"/tickets", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", w.Body.String())
	})

	t.Run("ticket", func(t *testing.T) {
		w := do(router, http.MethodGet, "/api/v1/tickets/"+tk.ID.String(), "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got ledger.Ticket
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, tk, got)
	})

	t.Run("receipt", func(t *testing.T) {
		w := do(router, http.MethodGet, "/api/v1/receipts/"+r.ID.String(), "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got xnats.Receipt
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.True(t, got.OK)
		assert.Equal(t, int64(4), got.LogID)
	})

	t.Run("missing", func(t *testing.T) {
		w := do(router, http.MethodGet, "/api/v1/tickets/"+uuid.NewString(), "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = do(router, http.MethodGet, "/api/v1/machines/"+ledger.DeriveMachineID(buyer, buyer).String(), "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
