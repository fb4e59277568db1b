package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"Danni-Agent/internal/ap2"
	"Danni-Agent/internal/observability/metrics"
	"Danni-Agent/internal/swarm"
	"Danni-Agent/internal/tracker"
	"Danni-Agent/pkg/logger"
)

// paymentResponseHeader 由上游 x402 网关在结算后转发。
const paymentResponseHeader = "X-PAYMENT-RESPONSE"

const streamBuffer = 64

type analyzeRequest struct {
	Brief    string `json:"brief"`
	Brand    string `json:"brand"`
	Industry string `json:"industry"`
}

// settlement 是 X-PAYMENT-RESPONSE 头解码后的内容。
type settlement struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer"`
}

func decodeSettlement(header string) (settlement, bool) {
	if header == "" {
		return settlement{}, false
	}
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return settlement{}, false
	}
	var s settlement
	if err := json.Unmarshal(raw, &s); err != nil || s.Transaction == "" {
		return settlement{}, false
	}
	if s.Network == "" {
		s.Network = ap2.NetworkBaseSepolia
	}
	return s, true
}

// handleAnalyze 处理 POST /api/danni/analyze。请求 Accept 为
// text/event-stream 时逐条推送执行事件，最后推送 result 或 error。
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err == nil {
		err = json.Unmarshal(body, &req)
	}
	if err != nil || strings.TrimSpace(req.Brief) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": `Missing "brief" in request body`})
		return
	}
	in := swarm.Input{Brief: req.Brief, Brand: req.Brand, Industry: req.Industry}
	paid, hasPayment := decodeSettlement(r.Header.Get(paymentResponseHeader))

	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		tr := s.swarm.NewTracker()
		if hasPayment {
			s.confirmSettlement(tr, paid, in.Brief)
		}
		out, err := s.swarm.Execute(r.Context(), in, tr)
		if err != nil {
			s.logger.Warn("分析失败", slog.Any("error", err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	flusher, canFlush := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	stream := tracker.NewStream(streamBuffer)
	tr := s.swarm.NewTracker(stream)

	type outcome struct {
		out *swarm.Output
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		if hasPayment {
			s.confirmSettlement(tr, paid, in.Brief)
		}
		out, err := s.swarm.Execute(r.Context(), in, tr)
		stream.Close()
		done <- outcome{out: out, err: err}
	}()

	for ev := range stream.C() {
		writeSSE(w, flusher, canFlush, string(ev.Kind), ev)
	}
	res := <-done
	if res.err != nil {
		s.logger.Warn("流式分析失败", slog.Any("error", res.err))
		writeSSE(w, flusher, canFlush, "error", map[string]string{"error": res.err.Error()})
		return
	}
	writeSSE(w, flusher, canFlush, "result", res.out)
}

// confirmSettlement 记录网关已结算的付款并发出 payment_confirmed 信号。
func (s *Server) confirmSettlement(tr *tracker.Tracker, paid settlement, brief string) {
	s.ledger.Record(ap2.Transaction{
		ID:        uuid.NewString(),
		TxHash:    paid.Transaction,
		Amount:    ap2.PriceBrandAnalysis,
		Service:   ap2.SkillBrandAnalysis,
		Network:   paid.Network,
		Timestamp: s.now().UnixMilli(),
		Status:    ap2.TxConfirmed,
		Brief:     brief,
	})
	metrics.ObservePayment(string(ap2.StatusCompleted))
	tr.PaymentConfirmed()
	logger.Audit().Info("网关付款已确认",
		slog.String("tx_hash", paid.Transaction),
		slog.String("network", paid.Network),
		slog.String("payer", paid.Payer))
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, canFlush bool, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	if canFlush {
		flusher.Flush()
	}
}

// handlePaymentHistory 返回账本中的全部付款记录，最新的在前。
func (s *Server) handlePaymentHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.List())
}
