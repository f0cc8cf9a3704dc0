package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/frahmantamala/pocket-settlement/internal/signer"
)

const (
	pathRegister       = "Register"
	pathOrder          = "Order"
	pathPayIn          = "b2puser/sd-services/SDPayIn"
	pathPayInSBP       = "b2puser/sd-services/SDPayInSBP"
	pathRelocate       = "b2puser/sd-services/SDRelocateFunds"
	pathPayOut         = "b2puser/sd-services/SDPayOut"
	pathPayOutPage     = "b2puser/sd-services/SDPayOutPage"
	pathBalance        = "b2puser/sd-services/SDGetBalance"
	pathSBPPayOutCheck = "b2puser/sd-services/SDPayOutSBPCheck"
	pathSBPPayOut      = "b2puser/sd-services/SDPayOutSBP"

	maxResponseBytes = 1 << 20
)

type Config struct {
	BaseURL    string
	Sector     string
	Password   string
	Currency   string
	Timeout    time.Duration
	SuccessURL string
	FailURL    string
	NotifyURL  string
}

type Client struct {
	baseURL    string
	sector     string
	password   string
	currency   string
	timeout    time.Duration
	successURL string
	failURL    string
	notifyURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	currency := config.Currency
	if currency == "" {
		currency = "643"
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		sector:     config.Sector,
		password:   config.Password,
		currency:   currency,
		timeout:    timeout,
		successURL: config.SuccessURL,
		failURL:    config.FailURL,
		notifyURL:  config.NotifyURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// form keeps fields in insertion order; url.Values would sort them.
type form struct {
	keys   []string
	values []string
}

func (f *form) add(key, value string) {
	f.keys = append(f.keys, key)
	f.values = append(f.values, value)
}

func (f *form) addIf(key, value string) {
	if value != "" {
		f.add(key, value)
	}
}

func (f *form) encode() string {
	var b strings.Builder
	for i, k := range f.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.values[i]))
	}
	return b.String()
}

func (c *Client) sign(values ...string) string {
	return signer.Sign(values, c.password)
}

func amount(v int64) string {
	return strconv.FormatInt(v, 10)
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Order, error) {
	f := &form{}
	f.add("sector", c.sector)
	f.add("amount", amount(req.Amount))
	f.add("currency", c.currency)
	f.add("reference", req.Reference)
	f.add("description", req.Description)
	if req.Fee > 0 {
		f.add("fee", amount(req.Fee))
	}
	f.addIf("url", orDefault(req.SuccessURL, c.successURL))
	f.addIf("failurl", orDefault(req.FailURL, c.failURL))
	f.addIf("notify_url", orDefault(req.NotifyURL, c.notifyURL))
	f.addIf("sd_ref", req.SdRef)
	f.add("mode", "1")
	f.add("signature", c.sign(c.sector, amount(req.Amount), c.currency))

	doc, err := c.post(ctx, "register", pathRegister, f)
	if err != nil {
		return nil, err
	}

	id := doc.ID()
	if id == "" {
		return nil, fmt.Errorf("register: %w: no order id", ErrMalformedResponse)
	}

	c.logger.Info("processor order registered",
		"order_id", id,
		"reference", req.Reference,
		"amount", req.Amount,
		"sd_ref", req.SdRef)

	return &Order{ID: id}, nil
}

func (c *Client) payInForm(req PayInRequest) *form {
	f := &form{}
	f.add("sector", c.sector)
	f.add("id", req.OrderID)
	f.add("amount", amount(req.Amount))
	f.add("currency", c.currency)
	f.add("sd_ref", req.SdRef)
	f.addIf("url", c.successURL)
	f.addIf("failurl", c.failURL)
	f.add("signature", c.sign(c.sector, req.OrderID, amount(req.Amount), c.currency, req.SdRef))
	return f
}

// PayInURL builds the hosted card page address for a registered order.
func (c *Client) PayInURL(req PayInRequest) string {
	return c.baseURL + "/" + pathPayIn + "?" + c.payInForm(req).encode()
}

func (c *Client) PayInSBP(ctx context.Context, req PayInRequest) (*SBPPayment, error) {
	doc, err := c.post(ctx, "pay_in_sbp", pathPayInSBP, c.payInForm(req))
	if err != nil {
		return nil, err
	}

	link := doc.First("qrc_link", "payload", "url")
	if link == "" {
		return nil, fmt.Errorf("pay_in_sbp: %w: no payment link", ErrMalformedResponse)
	}
	return &SBPPayment{OrderID: req.OrderID, Link: link}, nil
}

func (c *Client) OrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	f := &form{}
	f.add("sector", c.sector)
	f.add("id", orderID)
	f.add("signature", c.sign(c.sector, orderID))

	doc, err := c.post(ctx, "order_status", pathOrder, f)
	if err != nil {
		return nil, err
	}

	return &OrderStatus{
		ID:         orderID,
		Reference:  doc.Value("reference"),
		State:      doc.State(),
		OrderState: doc.OrderState(),
		Approved:   doc.Approved(),
	}, nil
}

func (c *Client) Relocate(ctx context.Context, req RelocateRequest) (*OperationResult, error) {
	f := &form{}
	f.add("sector", c.sector)
	f.add("id", req.OrderID)
	f.add("from_sd_ref", req.FromSdRef)
	f.add("to_sd_ref", req.ToSdRef)
	f.add("signature", c.sign(c.sector, req.OrderID, req.FromSdRef, req.ToSdRef))

	doc, err := c.post(ctx, "relocate", pathRelocate, f)
	if err != nil {
		return nil, err
	}
	return approvedResult("relocation", doc)
}

func (c *Client) PayOutCard(ctx context.Context, req CardPayOutRequest) (*OperationResult, error) {
	f := &form{}
	f.add("sector", c.sector)
	f.add("sd_ref", req.SdRef)
	f.add("pan", req.Pan)
	f.add("amount", amount(req.Amount))
	f.add("currency", c.currency)
	f.add("signature", c.sign(c.sector, req.Pan, amount(req.Amount), c.currency, req.SdRef))
	f.add("description", req.Description)
	if req.Fee > 0 {
		f.add("fee", amount(req.Fee))
	}

	doc, err := c.post(ctx, "pay_out_card", pathPayOut, f)
	if err != nil {
		return nil, err
	}
	return approvedResult("payout", doc)
}

// PayOutPageURL builds the hosted card-entry page address for a payout order.
func (c *Client) PayOutPageURL(orderID, sdRef string) string {
	f := &form{}
	f.add("sector", c.sector)
	f.add("id", orderID)
	f.add("sd_ref", sdRef)
	f.add("signature", c.sign(c.sector, orderID, sdRef))
	return c.baseURL + "/" + pathPayOutPage + "?" + f.encode()
}

func (c *Client) Balance(ctx context.Context, sdRef string) (int64, error) {
	f := &form{}
	f.add("sector", c.sector)
	f.add("sd_ref", sdRef)
	f.add("signature", c.sign(c.sector, sdRef))

	doc, err := c.post(ctx, "balance", pathBalance, f)
	if err != nil {
		return 0, err
	}

	raw, ok := doc.Get("balance")
	if !ok {
		return 0, fmt.Errorf("balance: %w: no balance field", ErrMalformedResponse)
	}
	balance, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("balance: %w: %v", ErrMalformedResponse, err)
	}
	return balance, nil
}

func (c *Client) SBPPayOutCheck(ctx context.Context, req SBPPayOutRequest) (string, error) {
	f := &form{}
	f.add("sector", c.sector)
	f.add("sd_ref", req.SdRef)
	f.add("amount", amount(req.Amount))
	f.add("currency", c.currency)
	f.add("phone", req.Phone)
	f.add("bank_id", req.BankID)
	f.add("signature", c.sign(c.sector, req.SdRef, amount(req.Amount), c.currency, req.Phone, req.BankID))

	doc, err := c.post(ctx, "sbp_pay_out_check", pathSBPPayOutCheck, f)
	if err != nil {
		return "", err
	}

	id := doc.ID()
	if id == "" {
		return "", fmt.Errorf("sbp_pay_out_check: %w: no check id", ErrMalformedResponse)
	}
	return id, nil
}

func (c *Client) SBPPayOut(ctx context.Context, checkID string) (*OperationResult, error) {
	f := &form{}
	f.add("sector", c.sector)
	f.add("id", checkID)
	f.add("signature", c.sign(c.sector, checkID))

	doc, err := c.post(ctx, "sbp_pay_out", pathSBPPayOut, f)
	if err != nil {
		return nil, err
	}
	return approvedResult("sbp payout", doc)
}

func approvedResult(what string, doc *Document) (*OperationResult, error) {
	if !doc.Approved() {
		return nil, &Rejection{
			Code:        doc.Value("code"),
			Description: fmt.Sprintf("%s not approved (state=%s, order_state=%s)", what, doc.State(), doc.OrderState()),
		}
	}
	return &OperationResult{ID: doc.ID(), State: doc.State(), OrderState: doc.OrderState()}, nil
}

func (c *Client) post(ctx context.Context, op, path string, f *form) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, strings.NewReader(f.encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("processor request failed", "op", op, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, &TransportError{Op: op, Err: err, Timeout: isTimeout(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read body: %w", err), Timeout: isTimeout(err)}
	}

	c.logger.Debug("processor response",
		"op", op,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	doc := ParseDocument(body)
	if rej := doc.Rejection(); rej != nil {
		c.logger.Warn("processor rejected request", "op", op, "error_code", rej.Code, "description", rej.Description)
		return nil, rej
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	return doc, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
