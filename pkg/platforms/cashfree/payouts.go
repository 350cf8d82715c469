package cashfree

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/worldofchami/bakerelay/pkg/models"
	"github.com/worldofchami/bakerelay/pkg/utils"
)

const refreshMargin = 5 * time.Minute

// TokenManager caches the Payouts bearer token and refreshes it shortly
// before it expires.
type TokenManager struct {
	clientID     string
	clientSecret string
	endpoint     string
	accessToken  string
	expiry       time.Time
	mu           sync.RWMutex
	httpClient   *http.Client
	now          func() time.Time
}

type authorizeResponse struct {
	Status  string `json:"status"`
	SubCode string `json:"subCode"`
	Message string `json:"message"`
	Data    struct {
		Token  string `json:"token"`
		Expiry int64  `json:"expiry"`
	} `json:"data"`
}

func NewTokenManager(conf Config) *TokenManager {
	return &TokenManager{
		clientID:     conf.PayoutClientID,
		clientSecret: conf.PayoutClientSecret,
		endpoint:     conf.payoutBaseURL() + "/payout/v1/authorize",
		httpClient: utils.NewHTTPClientWithHeaders(map[string]string{
			"X-Client-Id":     conf.PayoutClientID,
			"X-Client-Secret": conf.PayoutClientSecret,
		}, 30*time.Second),
		now: time.Now,
	}
}

// GetToken returns the current token, refreshing if necessary.
func (tm *TokenManager) GetToken() (string, error) {
	tm.mu.RLock()
	token := tm.accessToken
	expiry := tm.expiry
	tm.mu.RUnlock()

	if token != "" && expiry.Sub(tm.now()) >= refreshMargin {
		return token, nil
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	// another caller may have refreshed while we waited
	if tm.accessToken == "" || tm.expiry.Sub(tm.now()) < refreshMargin {
		if err := tm.refreshToken(context.Background()); err != nil {
			return "", fmt.Errorf("failed to refresh token: %w", err)
		}
	}
	return tm.accessToken, nil
}

func (tm *TokenManager) refreshToken(ctx context.Context) error {
	if tm.clientID == "" || tm.clientSecret == "" {
		return ErrNotConfigured
	}
	var resp authorizeResponse
	if err := doJSON(ctx, tm.httpClient, http.MethodPost, tm.endpoint, struct{}{}, &resp); err != nil {
		return err
	}
	if !strings.EqualFold(resp.Status, "SUCCESS") || resp.Data.Token == "" {
		return &APIError{StatusCode: http.StatusOK, Code: resp.SubCode, Message: resp.Message}
	}

	tm.accessToken = resp.Data.Token
	if resp.Data.Expiry > 0 {
		tm.expiry = time.Unix(resp.Data.Expiry, 0)
	} else {
		tm.expiry = tm.now().Add(10 * time.Minute)
	}
	return nil
}

// Payouts sends bank transfers through the Payouts API.
type Payouts struct {
	baseURL    string
	tokens     *TokenManager
	httpClient *http.Client
}

func NewPayouts(conf Config) *Payouts {
	tokens := NewTokenManager(conf)
	return &Payouts{
		baseURL:    conf.payoutBaseURL(),
		tokens:     tokens,
		httpClient: utils.NewHTTPClientWithTokenSource(tokens.GetToken, nil, 30*time.Second),
	}
}

type TransferRequest struct {
	BeneficiaryName string
	AccountNumber   string
	IFSC            string
	Amount          float64
	Remarks         string
}

func (r TransferRequest) validate() error {
	var missing []string
	if r.BeneficiaryName == "" {
		missing = append(missing, "beneficiary_name")
	}
	if r.AccountNumber == "" {
		missing = append(missing, "account_number")
	}
	if r.IFSC == "" {
		missing = append(missing, "ifsc")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	if r.Amount < 1 {
		return errors.New("amount must be at least 1")
	}
	return nil
}

type beneDetails struct {
	BankAccount string `json:"bankAccount"`
	IFSC        string `json:"ifsc"`
	Name        string `json:"name"`
}

type transferBody struct {
	Amount       float64     `json:"amount"`
	TransferID   string      `json:"transferId"`
	TransferMode string      `json:"transferMode"`
	Remarks      string      `json:"remarks,omitempty"`
	BeneDetails  beneDetails `json:"beneDetails"`
}

type transferResponse struct {
	Status  string `json:"status"`
	SubCode string `json:"subCode"`
	Message string `json:"message"`
	Data    struct {
		ReferenceID string `json:"referenceId"`
		UTR         string `json:"utr"`
	} `json:"data"`
}

// CreateTransfer requests a direct bank transfer. Cashfree reports pending
// transfers with status PENDING and subCode 201.
func (p *Payouts) CreateTransfer(ctx context.Context, req TransferRequest) (models.Transfer, error) {
	if err := req.validate(); err != nil {
		return models.Transfer{}, err
	}

	body := transferBody{
		Amount:       req.Amount,
		TransferID:   "tr_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		TransferMode: "banktransfer",
		Remarks:      req.Remarks,
		BeneDetails: beneDetails{
			BankAccount: req.AccountNumber,
			IFSC:        strings.ToUpper(req.IFSC),
			Name:        req.BeneficiaryName,
		},
	}

	var resp transferResponse
	if err := doJSON(ctx, p.httpClient, http.MethodPost, p.baseURL+"/payout/v1/directTransfer", body, &resp); err != nil {
		return models.Transfer{}, err
	}
	if strings.EqualFold(resp.Status, "ERROR") {
		return models.Transfer{}, &APIError{StatusCode: http.StatusOK, Code: resp.SubCode, Message: resp.Message}
	}

	return models.Transfer{
		ID:          body.TransferID,
		ReferenceID: resp.Data.ReferenceID,
		Beneficiary: req.BeneficiaryName,
		Amount:      req.Amount,
		Status:      resp.Status,
	}, nil
}
