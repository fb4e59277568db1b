package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"Danni-Agent/sdk/go/danni"
)

// main 使用本地模拟服务演示报价、付款、取回结果的完整流程。
func main() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call struct {
			Params struct {
				ContextID string `json:"contextId"`
			} `json:"params"`
		}
		_ = json.NewDecoder(r.Body).Decode(&call)

		task := danni.Task{ID: "task-demo", ContextID: "ctx-demo"}
		if call.Params.ContextID == "" {
			task.Status.State = danni.StateInputRequired
			task.Artifacts = []danni.Artifact{{
				Name: "cart-mandate",
				Parts: []danni.Part{{
					Type: "data",
					Data: json.RawMessage(`{"contents":{"total":"$100"},"paymentRequest":{"payTo":"0x0000000000000000000000000000000000000000","amount":"100000000","network":"eip155:84532"}}`),
				}},
			}}
		} else {
			task.Status.State = danni.StateCompleted
			task.Artifacts = []danni.Artifact{{
				Name:  "brand-analysis",
				Parts: []danni.Part{{Type: "text", Text: "Lead with provenance; own the morning ritual."}},
			}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": map[string]any{"task": task}})
	}))
	defer srv.Close()

	client, err := danni.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	quote, err := client.RequestQuote(ctx, "Reposition Acme coffee for Gen Z", "brand-analysis", "Brand analysis for Acme")
	if err != nil {
		panic(err)
	}
	cart, _ := quote.Cart()
	fmt.Printf("quote %s: pay %s base units to %s\n", quote.ID, cart.PaymentRequest.Amount, cart.PaymentRequest.PayTo)

	done, err := client.Pay(ctx, quote.ContextID, "signed-x402-authorization", "")
	if err != nil {
		panic(err)
	}
	if analysis, ok := done.Artifact("brand-analysis"); ok {
		fmt.Printf("task %s %s: %s\n", done.ID, done.Status.State, analysis.Parts[0].Text)
	}
}
