package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ariefcatur/go-laundry-orders/internal/orders"
)

const (
	JazzCashEndpoint  = "https://sandbox.jazzcash.com.pk/CustomerPortal/transactionmanagement/merchantform/"
	EasyPaisaEndpoint = "https://easypay.easypaisa.com.pk/easypay/Index.jsf"

	signatureField = "pp_SecureHash"
)

// pkt is the wallets' timestamp zone.
var pkt = time.FixedZone("PKT", 5*60*60)

// Signature is the wallets' integrity hash: field values ordered by key,
// joined with "&", HMAC-SHA256 under key, upper-case hex. The signature
// field itself is excluded.
func Signature(fields map[string]string, key string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == signatureField {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = fields[k]
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(strings.Join(vals, "&")))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// VerifySignature compares in constant time.
func VerifySignature(fields map[string]string, key string) bool {
	got := strings.ToUpper(strings.TrimSpace(fields[signatureField]))
	if got == "" {
		return false
	}
	return hmac.Equal([]byte(got), []byte(Signature(fields, key)))
}

// WalletSettler hands the customer to a mobile-wallet hosted checkout with
// a signed request. Without a merchant id it runs in sandbox mode and
// approves every charge.
type WalletSettler struct {
	method     orders.PaymentMethod
	name       string
	prefix     string
	merchantID string
	key        string
	endpoint   string
	returnURL  string
	clock      func() time.Time
}

func NewJazzCashSettler(merchantID, integritySalt, returnURL string) *WalletSettler {
	return &WalletSettler{
		method:     orders.MethodJazzCash,
		name:       "JazzCash",
		prefix:     "JC",
		merchantID: strings.TrimSpace(merchantID),
		key:        integritySalt,
		endpoint:   JazzCashEndpoint,
		returnURL:  returnURL,
		clock:      time.Now,
	}
}

func NewEasyPaisaSettler(storeID, hashKey, returnURL string) *WalletSettler {
	return &WalletSettler{
		method:     orders.MethodEasyPaisa,
		name:       "EasyPaisa",
		prefix:     "EP",
		merchantID: strings.TrimSpace(storeID),
		key:        hashKey,
		endpoint:   EasyPaisaEndpoint,
		returnURL:  returnURL,
		clock:      time.Now,
	}
}

func (w *WalletSettler) Method() orders.PaymentMethod { return w.method }

func (w *WalletSettler) Sandbox() bool { return w.merchantID == "" }

func (w *WalletSettler) Settle(_ context.Context, c Charge) (Result, error) {
	now := w.clock()
	txn := syntheticID(w.prefix, now)
	if w.Sandbox() {
		return Result{
			Success:       true,
			TransactionID: txn,
			Message:       w.name + " payment initiated. Please confirm on your phone.",
		}, nil
	}

	fields := w.requestFields(c, txn, now.In(pkt))
	fields[signatureField] = Signature(fields, w.key)
	q := url.Values{}
	for k, v := range fields {
		q.Set(k, v)
	}
	return Result{
		Success:       true,
		TransactionID: txn,
		RedirectURL:   w.endpoint + "?" + q.Encode(),
		Message:       "Payment request sent to your " + w.name + " account.",
	}, nil
}

func (w *WalletSettler) requestFields(c Charge, txn string, now time.Time) map[string]string {
	stamp := now.Format("20060102150405")
	if w.method == orders.MethodJazzCash {
		return map[string]string{
			"pp_Version":           "1.1",
			"pp_TxnType":           "MWALLET",
			"pp_MerchantID":        w.merchantID,
			"pp_TxnRefNo":          c.OrderID,
			"pp_Amount":            c.Amount.Shift(2).Round(0).String(),
			"pp_TxnCurrency":       "PKR",
			"pp_TxnDateTime":       stamp,
			"pp_TxnExpiryDateTime": now.Add(time.Hour).Format("20060102150405"),
			"pp_BillReference":     c.OrderNumber,
			"pp_Description":       "Laundry order " + c.OrderNumber,
			"pp_MobileNumber":      c.Phone,
			"pp_ReturnURL":         w.returnURL,
			"ppmpf_1":              txn,
		}
	}
	return map[string]string{
		"storeId":         w.merchantID,
		"orderRefNum":     c.OrderID,
		"amount":          c.Amount.StringFixed(2),
		"postBackURL":     w.returnURL,
		"mobileAccountNo": c.Phone,
		"emailAddr":       c.Email,
		"timeStamp":       now.Format("2006-01-02T15:04:05"),
		"paymentMethod":   "MA_PAYMENT_METHOD",
	}
}
