package tx

// Result is a group evaluation result code. The code space follows the
// convention used by settlement engines: tes for success, tec for failed
// preconditions (state was consulted and said no), tem for malformed
// groups (a composer bug, not a user error), and tel for local/transient
// conditions that can be retried as-is.
type Result int

const (
	// Success
	TesSUCCESS Result = 0

	// tec: precondition failures (100-199). The group is rejected in full;
	// retrying can succeed once the offending state changes.
	TecCONFIG_MISMATCH    Result = 100 // supplied terms do not hash to the asset digest
	TecNO_OFFER           Result = 101 // no active sell offer for (seller, asset)
	TecRESALE_FORBIDDEN   Result = 102
	TecRESALE_EXPIRED     Result = 103 // ledger time is at or past the resale deadline
	TecNOT_HOLDER         Result = 104 // caller does not hold the asset
	TecGIFT_FORBIDDEN     Result = 105
	TecPRICE_CAP_EXCEEDED Result = 106 // ask plus creator fee above the resale cap
	TecUNFUNDED           Result = 107 // payment sender cannot cover amount plus fee
	TecNO_ACCOUNT         Result = 108
	TecNO_ASSET           Result = 109
	TecNO_APP             Result = 110
	TecNOT_ESCROWED       Result = 111 // asset lacks the frozen/zero-authority escrow shape
	TecNOT_OPTED_IN       Result = 112

	// tem: malformed group (-299..-200). Composer bug; never retryable
	// without a code fix.
	TemMALFORMED      Result = -299
	TemBAD_GROUP_SIZE Result = -298
	TemBAD_LEG        Result = -297 // wrong leg kind at a position
	TemBAD_SENDER     Result = -296
	TemBAD_AMOUNT     Result = -295
	TemBAD_RECEIVER   Result = -294
	TemBAD_ARG_COUNT  Result = -293
	TemBAD_FEE        Result = -292 // leg fee above the ceiling
	TemBAD_SIDE_FX    Result = -291 // close-to or rekey-to set on a value leg
	TemBAD_SIGNATURE  Result = -290
	TemBAD_GROUP_ID   Result = -289 // leg not bound to the group identifier
	TemUNKNOWN_METHOD Result = -288

	// tel: local/transient (-399..-300). The same group may be resubmitted.
	TelNOT_READY Result = -399
	TelFAILED    Result = -398
)

var resultNames = map[Result]string{
	TesSUCCESS:            "tesSUCCESS",
	TecCONFIG_MISMATCH:    "tecCONFIG_MISMATCH",
	TecNO_OFFER:           "tecNO_OFFER",
	TecRESALE_FORBIDDEN:   "tecRESALE_FORBIDDEN",
	TecRESALE_EXPIRED:     "tecRESALE_EXPIRED",
	TecNOT_HOLDER:         "tecNOT_HOLDER",
	TecGIFT_FORBIDDEN:     "tecGIFT_FORBIDDEN",
	TecPRICE_CAP_EXCEEDED: "tecPRICE_CAP_EXCEEDED",
	TecUNFUNDED:           "tecUNFUNDED",
	TecNO_ACCOUNT:         "tecNO_ACCOUNT",
	TecNO_ASSET:           "tecNO_ASSET",
	TecNO_APP:             "tecNO_APP",
	TecNOT_ESCROWED:       "tecNOT_ESCROWED",
	TecNOT_OPTED_IN:       "tecNOT_OPTED_IN",
	TemMALFORMED:          "temMALFORMED",
	TemBAD_GROUP_SIZE:     "temBAD_GROUP_SIZE",
	TemBAD_LEG:            "temBAD_LEG",
	TemBAD_SENDER:         "temBAD_SENDER",
	TemBAD_AMOUNT:         "temBAD_AMOUNT",
	TemBAD_RECEIVER:       "temBAD_RECEIVER",
	TemBAD_ARG_COUNT:      "temBAD_ARG_COUNT",
	TemBAD_FEE:            "temBAD_FEE",
	TemBAD_SIDE_FX:        "temBAD_SIDE_FX",
	TemBAD_SIGNATURE:      "temBAD_SIGNATURE",
	TemBAD_GROUP_ID:       "temBAD_GROUP_ID",
	TemUNKNOWN_METHOD:     "temUNKNOWN_METHOD",
	TelNOT_READY:          "telNOT_READY",
	TelFAILED:             "telFAILED",
}

func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return "tecINTERNAL"
}

// Success reports whether the group was applied.
func (r Result) Success() bool { return r == TesSUCCESS }

// Precondition reports whether the group failed a state precondition and
// may succeed after the state changes.
func (r Result) Precondition() bool { return r >= 100 && r < 200 }

// Malformed reports whether the group shape itself was invalid. These
// indicate a composer bug and should be logged and alerted on, not shown
// to end users as their mistake.
func (r Result) Malformed() bool { return r <= -200 && r > -300 }

// Retryable reports whether the identical group may be resubmitted.
func (r Result) Retryable() bool { return r <= -300 && r > -400 }
