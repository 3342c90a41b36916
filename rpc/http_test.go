package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"paytoreply/core"
	"paytoreply/core/types"
	"paytoreply/crypto"
	"paytoreply/native/escrow"
	"paytoreply/storage"
)

type rpcTestEnv struct {
	server    *httptest.Server
	node      *core.Node
	sender    *crypto.PrivateKey
	recipient *crypto.PrivateKey
}

func addrOf(key *crypto.PrivateKey) [32]byte {
	var addr [32]byte
	copy(addr[:], key.PubKey().Address().Bytes())
	return addr
}

func newRPCTestEnv(t *testing.T) *rpcTestEnv {
	t.Helper()
	sender, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	recipient, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	node, err := core.NewNode(storage.NewMemDB(), core.NodeConfig{
		GenesisAlloc: map[[32]byte]*big.Int{
			addrOf(sender): big.NewInt(100_000_000),
		},
	})
	require.NoError(t, err)

	srv := NewServer(node)
	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.handle)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return &rpcTestEnv{server: ts, node: node, sender: sender, recipient: recipient}
}

func (env *rpcTestEnv) call(t *testing.T, method string, param interface{}) (*RPCResponse, int) {
	t.Helper()
	encoded, err := json.Marshal(param)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []json.RawMessage{encoded},
	})
	require.NoError(t, err)
	resp, err := http.Post(env.server.URL, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var parsed RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return &parsed, resp.StatusCode
}

func TestTxSendAndEscrowGet(t *testing.T) {
	env := newRPCTestEnv(t)

	recipientAddr := addrOf(env.recipient)
	payload, err := json.Marshal(map[string]interface{}{
		"recipient": recipientAddr[:],
		"messageId": "msg-rpc-test",
	})
	require.NoError(t, err)
	tx := &types.Transaction{
		Type:  types.TxTypeCreateEscrow,
		Nonce: 0,
		Value: big.NewInt(250_000),
		Data:  payload,
	}
	require.NoError(t, tx.Sign(env.sender.PrivateKey))

	resp, status := env.call(t, "tx_send", tx)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	resp, status = env.call(t, "escrow_get", map[string]string{"messageId": "msg-rpc-test"})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	encoded, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var rec escrowJSON
	require.NoError(t, json.Unmarshal(encoded, &rec))
	require.Equal(t, "msg-rpc-test", rec.MessageID)
	require.Equal(t, uint64(250_000), rec.Amount)
	require.Equal(t, escrow.StatusPending.String(), rec.Status)

	resp, status = env.call(t, "events_get", map[string]string{})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	encoded, err = json.Marshal(resp.Result)
	require.NoError(t, err)
	var recorded []*types.Event
	require.NoError(t, json.Unmarshal(encoded, &recorded))
	require.NotEmpty(t, recorded)
	require.Equal(t, escrow.EventTypeEscrowCreated, recorded[len(recorded)-1].Type)
}

func TestEscrowGetNotFound(t *testing.T) {
	env := newRPCTestEnv(t)
	resp, status := env.call(t, "escrow_get", map[string]string{"messageId": "zzzz-missing"})
	require.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeEscrowNotFound, resp.Error.Code)
}

func TestBalanceGet(t *testing.T) {
	env := newRPCTestEnv(t)
	resp, status := env.call(t, "balance_get", map[string]string{
		"address": env.sender.PubKey().Address().String(),
	})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	encoded, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var parsed balanceJSON
	require.NoError(t, json.Unmarshal(encoded, &parsed))
	require.Equal(t, "100000000", parsed.Balance)
}

func TestTxSendRejectsUnauthorizedSettle(t *testing.T) {
	env := newRPCTestEnv(t)

	recipientAddr := addrOf(env.recipient)
	senderAddr := addrOf(env.sender)
	payload, err := json.Marshal(map[string]interface{}{
		"recipient": recipientAddr[:],
		"messageId": "msg-rpc-auth",
	})
	require.NoError(t, err)
	create := &types.Transaction{
		Type:  types.TxTypeCreateEscrow,
		Nonce: 0,
		Value: big.NewInt(100_000),
		Data:  payload,
	}
	require.NoError(t, create.Sign(env.sender.PrivateKey))
	resp, _ := env.call(t, "tx_send", create)
	require.Nil(t, resp.Error)

	id, err := escrow.DeriveAddress("msg-rpc-auth")
	require.NoError(t, err)
	settle, err := json.Marshal(map[string]interface{}{
		"id":     id[:],
		"sender": senderAddr[:],
	})
	require.NoError(t, err)
	approve := &types.Transaction{
		Type:  types.TxTypeApproveEscrow,
		Nonce: 1,
		Value: big.NewInt(0),
		Data:  settle,
	}
	// Signed by the sender, not the recipient: forbidden.
	require.NoError(t, approve.Sign(env.sender.PrivateKey))

	resp, status := env.call(t, "tx_send", approve)
	require.Equal(t, http.StatusForbidden, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeEscrowForbidden, resp.Error.Code)
}

func TestUnknownMethod(t *testing.T) {
	env := newRPCTestEnv(t)
	resp, status := env.call(t, "escrow_list", map[string]string{})
	require.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}
