package steem

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"steem-patron-bot/internal/domain"
)

// Operation ids in the ledger's binary format.
const (
	opVote     uint64 = 0
	opTransfer uint64 = 2
)

// Operation is a signable ledger operation.
type Operation interface {
	opID() uint64
	opName() string
	appendBinary(b []byte) []byte
}

// VoteOperation casts a weighted vote on a post.
type VoteOperation struct {
	Voter    string `json:"voter"`
	Author   string `json:"author"`
	Permlink string `json:"permlink"`
	Weight   int16  `json:"weight"` // -10000..10000
}

func (VoteOperation) opID() uint64   { return opVote }
func (VoteOperation) opName() string { return "vote" }

func (o VoteOperation) appendBinary(b []byte) []byte {
	b = appendString(b, o.Voter)
	b = appendString(b, o.Author)
	b = appendString(b, o.Permlink)
	return binary.LittleEndian.AppendUint16(b, uint16(o.Weight))
}

// TransferOperation moves liquid tokens between accounts.
type TransferOperation struct {
	From   string       `json:"from"`
	To     string       `json:"to"`
	Amount domain.Asset `json:"-"`
	Memo   string       `json:"memo"`
}

func (TransferOperation) opID() uint64   { return opTransfer }
func (TransferOperation) opName() string { return "transfer" }

func (o TransferOperation) appendBinary(b []byte) []byte {
	b = appendString(b, o.From)
	b = appendString(b, o.To)
	b = appendAsset(b, o.Amount)
	return appendString(b, o.Memo)
}

// MarshalJSON renders the amount in "0.001 STEEM" form.
func (o TransferOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		From   string `json:"from"`
		To     string `json:"to"`
		Amount string `json:"amount"`
		Memo   string `json:"memo"`
	}{o.From, o.To, o.Amount.String(), o.Memo})
}

// Transaction is an unsigned or signed ledger transaction.
type Transaction struct {
	RefBlockNum    uint16
	RefBlockPrefix uint32
	Expiration     time.Time
	Operations     []Operation
	Signatures     []string
}

// NewTransaction references the given head block and expires after ttl.
func NewTransaction(props *GlobalProperties, ttl time.Duration, ops ...Operation) (*Transaction, error) {
	id, err := hex.DecodeString(props.HeadBlockID)
	if err != nil {
		return nil, fmt.Errorf("decode head block id: %w", err)
	}
	if len(id) < 8 {
		return nil, fmt.Errorf("head block id too short: %d bytes", len(id))
	}
	return &Transaction{
		RefBlockNum:    uint16(props.HeadBlockNumber & 0xffff),
		RefBlockPrefix: binary.LittleEndian.Uint32(id[4:8]),
		Expiration:     props.Time.Add(ttl).UTC().Truncate(time.Second),
		Operations:     ops,
	}, nil
}

// Serialize encodes the transaction without signatures.
func (tx *Transaction) Serialize() []byte {
	b := make([]byte, 0, 128)
	b = binary.LittleEndian.AppendUint16(b, tx.RefBlockNum)
	b = binary.LittleEndian.AppendUint32(b, tx.RefBlockPrefix)
	b = binary.LittleEndian.AppendUint32(b, uint32(tx.Expiration.Unix()))
	b = binary.AppendUvarint(b, uint64(len(tx.Operations)))
	for _, op := range tx.Operations {
		b = binary.AppendUvarint(b, op.opID())
		b = op.appendBinary(b)
	}
	// extensions
	return binary.AppendUvarint(b, 0)
}

// MarshalJSON renders the condenser_api transaction form.
func (tx *Transaction) MarshalJSON() ([]byte, error) {
	ops := make([][2]interface{}, len(tx.Operations))
	for i, op := range tx.Operations {
		ops[i] = [2]interface{}{op.opName(), op}
	}
	sigs := tx.Signatures
	if sigs == nil {
		sigs = []string{}
	}
	return json.Marshal(struct {
		RefBlockNum    uint16           `json:"ref_block_num"`
		RefBlockPrefix uint32           `json:"ref_block_prefix"`
		Expiration     string           `json:"expiration"`
		Operations     [][2]interface{} `json:"operations"`
		Extensions     []interface{}    `json:"extensions"`
		Signatures     []string         `json:"signatures"`
	}{
		RefBlockNum:    tx.RefBlockNum,
		RefBlockPrefix: tx.RefBlockPrefix,
		Expiration:     tx.Expiration.UTC().Format(TimeLayout),
		Operations:     ops,
		Extensions:     []interface{}{},
		Signatures:     sigs,
	})
}

func appendString(b []byte, s string) []byte {
	b = binary.AppendUvarint(b, uint64(len(s)))
	return append(b, s...)
}

func appendAsset(b []byte, a domain.Asset) []byte {
	b = binary.LittleEndian.AppendUint64(b, uint64(a.Satoshis()))
	b = append(b, a.Precision())
	var symbol [7]byte
	copy(symbol[:], a.Symbol)
	return append(b, symbol[:]...)
}
