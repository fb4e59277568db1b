package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"Danni-Agent/internal/a2a"
	"Danni-Agent/internal/ap2"
	xerrors "Danni-Agent/internal/errors"
	"Danni-Agent/internal/observability/metrics"
	"Danni-Agent/internal/task"
	"Danni-Agent/pkg/logger"
)

// 产出物名称。
const (
	ArtifactCartMandate    = "cart-mandate"
	ArtifactPaymentReceipt = "payment-receipt"
)

const (
	reputationEndpoint = "/api/a2a"
	reputationTimeout  = 30 * time.Second
)

type sendMessageParams struct {
	Message   *a2a.Message   `json:"message" validate:"required"`
	ContextID string         `json:"contextId"`
	Metadata  map[string]any `json:"metadata"`
}

type taskIDParams struct {
	ID string `json:"id" validate:"required"`
}

type taskResult struct {
	Task *a2a.Task `json:"task"`
}

// handleA2A 处理 POST /api/a2a 上的任务协议调用。
func (s *Server) handleA2A(w http.ResponseWriter, r *http.Request) {
	req, envErr := decodeRPC(r)
	if envErr != nil {
		metrics.ObserveRPC("a2a", "invalid", envErr.outcome())
		writeJSON(w, http.StatusOK, envErr)
		return
	}

	var resp rpcResponse
	method := req.Method
	switch req.Method {
	case "SendMessage", "message/send":
		method = "SendMessage"
		resp = s.sendMessage(r.Context(), req)
	case "GetTask", "tasks/get":
		method = "GetTask"
		resp = s.getTask(r.Context(), req)
	case "CancelTask", "tasks/cancel":
		method = "CancelTask"
		resp = s.cancelTask(r.Context(), req)
	default:
		method = "unknown"
		resp = rpcFailure(req.ID, a2a.RPCUnsupportedOperation, "Unknown method: "+req.Method)
	}
	metrics.ObserveRPC("a2a", method, resp.outcome())
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) sendMessage(ctx context.Context, req rpcRequest) rpcResponse {
	var params sendMessageParams
	if err := decodeParams(req.Params, &params); err != nil {
		return invalidParams(req.ID, err)
	}
	msg := *params.Message
	contextID := params.ContextID
	if contextID == "" {
		contextID = msg.ContextID
	}

	detection := ap2.DetectMandate(msg.Parts)
	if detection.Ignored > 0 {
		s.logger.Debug("消息包含多个授权书，仅处理第一个",
			slog.String("kind", detection.Kind.String()),
			slog.Int("ignored", detection.Ignored))
	}

	switch detection.Kind {
	case ap2.KindMalformed:
		return rpcFailure(req.ID, ap2.RPCPaymentInvalid, detection.Err.Error())
	case ap2.KindIntent:
		return s.handleIntent(ctx, req.ID, msg, detection.Intent)
	case ap2.KindPayment:
		return s.handlePayment(ctx, req.ID, msg, detection.Payment, contextID)
	}

	t, err := s.tasks.Create(ctx, msg, "")
	if err != nil {
		return rpcFromError(req.ID, err)
	}
	done, err := s.tasks.Process(context.WithoutCancel(ctx), t.ID)
	if err != nil {
		return rpcFromError(req.ID, err)
	}
	return rpcSuccess(req.ID, taskResult{Task: done})
}

// handleIntent 为意向授权书报价，并把任务停在 input-required 等待付款。
func (s *Server) handleIntent(ctx context.Context, id json.RawMessage, msg a2a.Message, intent *ap2.IntentMandate) rpcResponse {
	t, err := s.quote(ctx, msg, intent)
	if err != nil {
		return rpcFailure(id, ap2.RPCPaymentRequired, err.Error())
	}
	metrics.ObservePayment(string(ap2.StatusRequired))
	return rpcSuccess(id, taskResult{Task: t})
}

func (s *Server) quote(ctx context.Context, msg a2a.Message, intent *ap2.IntentMandate) (*a2a.Task, error) {
	cart, err := ap2.BuildCartMandate(intent.SkillID, s.cfg.PayTo)
	if err != nil {
		return nil, err
	}
	t, err := s.tasks.Create(ctx, msg, "")
	if err != nil {
		return nil, err
	}
	quoted, err := s.priceTask(ctx, t, cart, intent)
	if err != nil {
		s.abandonQuote(ctx, t.ID, err)
		return nil, err
	}
	return quoted, nil
}

// priceTask 把新建任务推进到 input-required，并附上购物车授权书。
func (s *Server) priceTask(ctx context.Context, t *a2a.Task, cart *ap2.CartMandate, intent *ap2.IntentMandate) (*a2a.Task, error) {
	if _, err := s.tasks.UpdateStatus(ctx, t.ID, a2a.StateWorking,
		a2a.AgentMessage("Processing intent and building payment requirements...", nil)); err != nil {
		return nil, err
	}

	cartPart, err := a2a.DataPart("application/json", cart)
	if err != nil {
		return nil, err
	}
	if _, err := s.tasks.AddArtifact(ctx, t.ID, a2a.Artifact{
		ArtifactID:  uuid.NewString(),
		Name:        ArtifactCartMandate,
		Description: "AP2 CartMandate with x402 payment requirements",
		Parts:       []a2a.Part{cartPart},
		Metadata: ap2.BuildPaymentMetadata(ap2.StatusRequired, map[string]any{
			ap2.MetaRequired: cart.PaymentRequest,
		}),
	}); err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Payment of %s USDC required for %s. Submit a PaymentMandate with contextId %q to proceed.",
		cart.Contents.Total, intent.Description, t.ContextID)
	updated, err := s.tasks.UpdateStatus(ctx, t.ID, a2a.StateInputRequired,
		a2a.AgentMessage(text, ap2.BuildPaymentMetadata(ap2.StatusRequired, nil)))
	if err != nil {
		return nil, err
	}
	logger.Audit().Info("已生成购物车授权书",
		slog.String("task_id", t.ID),
		slog.String("context_id", t.ContextID),
		slog.String("skill_id", intent.SkillID),
		slog.String("total", cart.Contents.Total))
	return updated, nil
}

// abandonQuote 尽力把报价失败的任务迁移到 failed，避免其停留在 working。
func (s *Server) abandonQuote(ctx context.Context, taskID string, cause error) {
	msg := cause.Error()
	if _, err := s.tasks.UpdateStatus(context.WithoutCancel(ctx), taskID, a2a.StateFailed,
		a2a.AgentMessage("Task failed: "+msg, ap2.BuildPaymentMetadata(ap2.StatusFailed, nil))); err != nil {
		s.logger.Warn("报价失败的任务无法迁移到 failed",
			slog.String("task_id", taskID),
			slog.Any("error", err),
			slog.String("original_error", msg))
	}
}

// handlePayment 接受付款授权书：续接 input-required 的上下文或新建任务，
// 然后执行分析并附加收据。分析与结算脱离请求的取消信号，客户端断开不影响已付款的任务。
func (s *Server) handlePayment(ctx context.Context, id json.RawMessage, msg a2a.Message, payment *ap2.PaymentMandate, contextID string) rpcResponse {
	if err := ap2.CheckPayload(payment); err != nil {
		metrics.ObservePayment("rejected")
		return rpcFromError(id, err)
	}

	var taskID string
	existing := s.resumable(ctx, contextID)
	if existing != nil {
		if existing.Status.State == a2a.StateInputRequired {
			if cart, ok := cartOf(existing); ok && ap2.IsCartMandateExpired(cart.ExpiresAt) {
				metrics.ObservePayment("rejected")
				return rpcFromError(id, ap2.ErrCartExpired)
			}
		}
		if _, err := s.tasks.Resume(ctx, existing.ID, msg,
			a2a.AgentMessage("Payment accepted. Resuming analysis on existing context...",
				ap2.BuildPaymentMetadata(ap2.StatusVerified, nil))); err != nil {
			metrics.ObservePayment("rejected")
			return rpcFromError(id, err)
		}
		taskID = existing.ID
	} else {
		t, err := s.tasks.Create(ctx, msg, "")
		if err != nil {
			return rpcFromError(id, err)
		}
		if _, err := s.tasks.UpdateStatus(ctx, t.ID, a2a.StateWorking,
			a2a.AgentMessage("Payment accepted. Danni is analyzing your brief...",
				ap2.BuildPaymentMetadata(ap2.StatusVerified, nil))); err != nil {
			return rpcFromError(id, err)
		}
		taskID = t.ID
	}
	logger.Audit().Info("付款已接受",
		slog.String("task_id", taskID),
		slog.Bool("resumed", existing != nil))

	txHash := payment.TransactionHash
	if txHash == "" {
		txHash = "0x" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	work := context.WithoutCancel(ctx)
	current, err := s.tasks.Get(work, taskID)
	if err != nil {
		return rpcFromError(id, err)
	}
	amount, service := paymentTerms(current, payment)

	final, err := s.settle(work, taskID, payment, txHash, amount, service)
	if err != nil {
		return s.failPayment(work, id, taskID, txHash, amount, service, err)
	}
	return rpcSuccess(id, taskResult{Task: final})
}

// resumable 返回 contextID 绑定的待付款任务。已在 working 的任务也会返回，
// 使重复付款在 Resume 处因迁移不合法而失败，而不是再开一次分析。
func (s *Server) resumable(ctx context.Context, contextID string) *a2a.Task {
	if contextID == "" {
		return nil
	}
	t, err := s.tasks.FindByContextID(ctx, contextID)
	if err != nil {
		if !errors.Is(err, task.ErrTaskNotFound) {
			s.logger.Warn("按上下文查找任务失败", slog.String("context_id", contextID), slog.Any("error", err))
		}
		return nil
	}
	switch t.Status.State {
	case a2a.StateInputRequired, a2a.StateWorking:
		return t
	}
	return nil
}

// paymentTerms 取购物车报价作为收据金额；没有购物车时回退到付款负载。
func paymentTerms(t *a2a.Task, payment *ap2.PaymentMandate) (amount, service string) {
	amount, service = payment.PaymentPayload, ap2.SkillBrandAnalysis
	if t == nil {
		return amount, service
	}
	if cart, ok := cartOf(t); ok {
		if cart.PaymentRequest.Amount != "" {
			amount = cart.PaymentRequest.Amount
		}
		if len(cart.Contents.Items) > 0 {
			service = cart.Contents.Items[0].SkillID
		}
	}
	return amount, service
}

func (s *Server) settle(ctx context.Context, taskID string, payment *ap2.PaymentMandate, txHash, amount, service string) (*a2a.Task, error) {
	processed, err := s.tasks.Process(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if processed.Status.State != a2a.StateCompleted {
		return nil, xerrors.Newf(xerrors.CodeExecutorFailure, "analysis ended in state %s", processed.Status.State)
	}

	receipt := ap2.BuildPaymentReceipt(txHash, ap2.NetworkBaseSepolia, amount)
	receiptPart, err := a2a.DataPart("application/json", receipt)
	if err != nil {
		return nil, err
	}
	final, err := s.tasks.AddArtifact(ctx, processed.ID, a2a.Artifact{
		ArtifactID:  uuid.NewString(),
		Name:        ArtifactPaymentReceipt,
		Description: "AP2 PaymentReceipt confirming on-chain settlement",
		Parts:       []a2a.Part{receiptPart},
		Metadata: ap2.BuildPaymentMetadata(ap2.StatusCompleted, map[string]any{
			ap2.MetaReceipts: []ap2.PaymentReceipt{receipt},
		}),
	})
	if err != nil {
		return nil, err
	}

	s.recordPayment(final, txHash, amount, service, ap2.TxConfirmed)
	metrics.ObservePayment(string(ap2.StatusCompleted))
	s.swarm.NewTracker().PaymentConfirmed()
	logger.Audit().Info("付款已结算",
		slog.String("task_id", final.ID),
		slog.String("tx_hash", txHash),
		slog.String("amount", amount))

	s.notifyReputation(ctx, txHash, payment.PaymentPayload)
	return final, nil
}

// failPayment 尽力把任务迁移到 failed；迁移本身失败时只记录日志，仍返回任务。
func (s *Server) failPayment(ctx context.Context, id json.RawMessage, taskID, txHash, amount, service string, cause error) rpcResponse {
	msg := cause.Error()
	if _, err := s.tasks.UpdateStatus(ctx, taskID, a2a.StateFailed,
		a2a.AgentMessage("Payment failed: "+msg, ap2.BuildPaymentMetadata(ap2.StatusFailed, nil))); err != nil {
		s.logger.Warn("任务无法迁移到 failed",
			slog.String("task_id", taskID),
			slog.Any("error", err),
			slog.String("original_error", msg))
	}
	metrics.ObservePayment(string(ap2.StatusFailed))
	logger.Audit().Warn("付款处理失败",
		slog.String("task_id", taskID),
		slog.String("tx_hash", txHash),
		slog.String("error", msg))

	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return rpcFromError(id, xerrors.Wrap(ap2.CodePaymentFailed, cause, "Payment processing failed"))
	}
	s.recordPayment(t, txHash, amount, service, ap2.TxFailed)
	return rpcSuccess(id, taskResult{Task: t})
}

func (s *Server) recordPayment(t *a2a.Task, txHash, amount, service string, status ap2.TransactionStatus) {
	if s.ledger == nil {
		return
	}
	s.ledger.Record(ap2.Transaction{
		ID:        uuid.NewString(),
		TxHash:    txHash,
		Amount:    amount,
		Service:   service,
		Network:   ap2.NetworkBaseSepolia,
		Timestamp: s.now().UnixMilli(),
		Status:    status,
		Brief:     task.Brief(t),
	})
}

// notifyReputation 向 ERC-8004 声誉注册表提交反馈，失败不影响响应。
func (s *Server) notifyReputation(ctx context.Context, txHash, amount string) {
	if s.reputation == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reputationTimeout)
	defer cancel()
	submitted, err := s.reputation.NotifyPayment(ctx, s.cfg.AgentURI, reputationEndpoint, txHash, amount)
	if err != nil {
		s.logger.Warn("ERC-8004 声誉反馈失败（不影响结果）", slog.Any("error", err), slog.String("tx_hash", txHash))
		return
	}
	if !submitted {
		s.logger.Debug("代理尚未注册身份，跳过声誉反馈", slog.String("agent_uri", s.cfg.AgentURI))
	}
}

// cartOf 解码任务上的购物车授权书。
func cartOf(t *a2a.Task) (*ap2.CartMandate, bool) {
	artifact, ok := t.FindArtifact(ArtifactCartMandate)
	if !ok {
		return nil, false
	}
	for _, part := range artifact.Parts {
		if part.Type != a2a.PartData {
			continue
		}
		var cart ap2.CartMandate
		if err := part.DecodeData(&cart); err != nil {
			continue
		}
		return &cart, true
	}
	return nil, false
}

func (s *Server) getTask(ctx context.Context, req rpcRequest) rpcResponse {
	var params taskIDParams
	if err := decodeParams(req.Params, &params); err != nil {
		return invalidParams(req.ID, err)
	}
	t, err := s.tasks.Get(ctx, params.ID)
	if err != nil {
		return rpcFromError(req.ID, err)
	}
	return rpcSuccess(req.ID, taskResult{Task: t})
}

func (s *Server) cancelTask(ctx context.Context, req rpcRequest) rpcResponse {
	var params taskIDParams
	if err := decodeParams(req.Params, &params); err != nil {
		return invalidParams(req.ID, err)
	}
	t, err := s.tasks.Cancel(ctx, params.ID)
	if err != nil {
		return rpcFromError(req.ID, err)
	}
	return rpcSuccess(req.ID, taskResult{Task: t})
}
