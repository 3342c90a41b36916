package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strings"

	"paytoreply/core/types"
	"paytoreply/crypto"
	"paytoreply/native/escrow"
)

var rpcEndpoint = defaultRPCEndpoint()

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("PAYTOREPLY_RPC_URL")); v != "" {
		return v
	}
	return "http://127.0.0.1:8645"
}

func main() {
	args := os.Args[1:]
	if len(args) < 1 {
		printUsage()
		return
	}

	switch args[0] {
	case "generate-key":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an output file.")
			printUsage()
			return
		}
		generateKey(args[1])
	case "balance":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		getBalance(args[1])
	case "send-payment":
		if len(args) < 5 {
			fmt.Println("Error: Please provide a recipient, amount, message id and key file.")
			printUsage()
			return
		}
		sendPayment(args[1], args[2], args[3], args[4])
	case "approve":
		if len(args) < 4 {
			fmt.Println("Error: Please provide a message id, sender address and key file.")
			printUsage()
			return
		}
		settlePayment(types.TxTypeApproveEscrow, args[1], args[2], args[3])
	case "reject":
		if len(args) < 4 {
			fmt.Println("Error: Please provide a message id, sender address and key file.")
			printUsage()
			return
		}
		settlePayment(types.TxTypeRejectEscrow, args[1], args[2], args[3])
	case "donate":
		if len(args) < 4 {
			fmt.Println("Error: Please provide a donation address, amount and key file.")
			printUsage()
			return
		}
		donate(args[1], args[2], args[3])
	case "get-escrow":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a message id.")
			printUsage()
			return
		}
		getEscrow(args[1])
	default:
		printUsage()
	}
}

func printUsage() {
	fmt.Println(`Usage: paytoreply-cli <command> [arguments]

Commands:
  generate-key <file>                                 Generate a key and print its address
  balance <address>                                   Query an account balance
  send-payment <recipient> <amount> <msg-id> <key>    Fund a message payment escrow
  approve <msg-id> <sender> <key>                     Accept a pending payment (recipient only)
  reject <msg-id> <sender> <key>                      Decline a pending payment (recipient only)
  donate <address> <amount> <key>                     Send an unconditional donation
  get-escrow <msg-id>                                 Inspect the escrow record for a message`)
}

func generateKey(path string) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Println("Error generating key:", err)
		return
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key.Bytes())), 0o600); err != nil {
		fmt.Println("Error writing key file:", err)
		return
	}
	fmt.Println("Key saved to", path)
	fmt.Println("Address:", key.PubKey().Address().String())
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("key file is not hex: %w", err)
	}
	return crypto.PrivateKeyFromBytes(decoded)
}

func getBalance(address string) {
	result, err := call("balance_get", map[string]string{"address": address})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println(string(result))
}

func getEscrow(messageID string) {
	result, err := call("escrow_get", map[string]string{"messageId": messageID})
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println(string(result))
}

func sendPayment(recipientStr, amountStr, messageID, keyFile string) {
	key, err := loadKey(keyFile)
	if err != nil {
		fmt.Println("Error loading key:", err)
		return
	}
	recipient, err := crypto.DecodeAddress(recipientStr)
	if err != nil {
		fmt.Println("Error: invalid recipient address:", err)
		return
	}
	amount, ok := new(big.Int).SetString(amountStr, 10)
	if !ok || amount.Sign() <= 0 {
		fmt.Println("Error: invalid amount.")
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"recipient": recipient.Bytes(),
		"messageId": messageID,
	})
	tx := &types.Transaction{
		Type:  types.TxTypeCreateEscrow,
		Nonce: fetchNonce(key.PubKey().Address()),
		Value: amount,
		Data:  payload,
	}
	submit(tx, key)
}

func settlePayment(txType types.TxType, messageID, senderStr, keyFile string) {
	key, err := loadKey(keyFile)
	if err != nil {
		fmt.Println("Error loading key:", err)
		return
	}
	sender, err := crypto.DecodeAddress(senderStr)
	if err != nil {
		fmt.Println("Error: invalid sender address:", err)
		return
	}
	id, err := escrow.DeriveAddress(messageID)
	if err != nil {
		fmt.Println("Error: invalid message id:", err)
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"id":     id[:],
		"sender": sender.Bytes(),
	})
	tx := &types.Transaction{
		Type:  txType,
		Nonce: fetchNonce(key.PubKey().Address()),
		Value: big.NewInt(0),
		Data:  payload,
	}
	submit(tx, key)
}

func donate(addressStr, amountStr, keyFile string) {
	key, err := loadKey(keyFile)
	if err != nil {
		fmt.Println("Error loading key:", err)
		return
	}
	address, err := crypto.DecodeAddress(addressStr)
	if err != nil {
		fmt.Println("Error: invalid donation address:", err)
		return
	}
	amount, ok := new(big.Int).SetString(amountStr, 10)
	if !ok || amount.Sign() <= 0 {
		fmt.Println("Error: invalid amount.")
		return
	}
	tx := &types.Transaction{
		Type:  types.TxTypeDonate,
		Nonce: fetchNonce(key.PubKey().Address()),
		To:    address.Bytes(),
		Value: amount,
	}
	submit(tx, key)
}

func fetchNonce(addr crypto.Address) uint64 {
	result, err := call("balance_get", map[string]string{"address": addr.String()})
	if err != nil {
		return 0
	}
	var parsed struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return 0
	}
	return parsed.Nonce
}

func submit(tx *types.Transaction, key *crypto.PrivateKey) {
	if err := tx.Sign(key.PrivateKey); err != nil {
		fmt.Println("Error signing transaction:", err)
		return
	}
	result, err := call("tx_send", tx)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println(string(result))
}

func call(method string, param interface{}) (json.RawMessage, error) {
	encoded, err := json.Marshal(param)
	if err != nil {
		return nil, err
	}
	reqBody, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []json.RawMessage{encoded},
	})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(rpcEndpoint, "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var parsed struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int         `json:"code"`
			Message string      `json:"message"`
			Data    interface{} `json:"data"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%s (%v)", parsed.Error.Message, parsed.Error.Data)
	}
	return parsed.Result, nil
}
