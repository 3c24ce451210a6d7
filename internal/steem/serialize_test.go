package steem

import (
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steem-patron-bot/internal/domain"
)

func testProps() *GlobalProperties {
	return &GlobalProperties{
		HeadBlockNumber: 0x00012345,
		HeadBlockID:     "00012345aabbccdd00000000000000000000000000",
		Time:            Time{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func TestVoteOperation_Binary(t *testing.T) {
	op := VoteOperation{Voter: "a", Author: "b", Permlink: "c", Weight: 10000}
	assert.Equal(t, "0161016201631027", hex.EncodeToString(op.appendBinary(nil)))
}

func TestTransferOperation_Binary(t *testing.T) {
	op := TransferOperation{From: "a", To: "b", Amount: domain.MustParseAsset("0.001 STEEM"), Memo: "m"}
	want := "01610162" + "010000000000000003535445454d0000" + "016d"
	assert.Equal(t, want, hex.EncodeToString(op.appendBinary(nil)))
}

func TestNewTransaction_References(t *testing.T) {
	tx, err := NewTransaction(testProps(), 60*time.Second)
	require.NoError(t, err)

	assert.Equal(t, uint16(0x2345), tx.RefBlockNum)
	assert.Equal(t, uint32(0xddccbbaa), tx.RefBlockPrefix)
	assert.Equal(t, int64(1704067260), tx.Expiration.Unix())
}

func TestNewTransaction_BadBlockID(t *testing.T) {
	props := testProps()
	props.HeadBlockID = "zz"
	_, err := NewTransaction(props, time.Minute)
	assert.Error(t, err)

	props.HeadBlockID = "0001"
	_, err = NewTransaction(props, time.Minute)
	assert.Error(t, err)
}

func TestTransaction_Serialize(t *testing.T) {
	tx, err := NewTransaction(testProps(), 60*time.Second,
		VoteOperation{Voter: "a", Author: "b", Permlink: "c", Weight: 10000})
	require.NoError(t, err)

	assert.Equal(t, "4523aabbccddbc0092650100016101620163102700", hex.EncodeToString(tx.Serialize()))
}

func TestTransaction_MarshalJSON(t *testing.T) {
	tx, err := NewTransaction(testProps(), 60*time.Second,
		TransferOperation{From: "registrar", To: "alice", Amount: domain.MustParseAsset("0.001 STEEM"), Memo: "refund"})
	require.NoError(t, err)

	raw, err := json.Marshal(tx)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "2024-01-01T00:01:00", decoded["expiration"])
	assert.Equal(t, float64(0x2345), decoded["ref_block_num"])
	assert.Equal(t, []any{}, decoded["signatures"])

	ops := decoded["operations"].([]any)
	require.Len(t, ops, 1)
	pair := ops[0].([]any)
	assert.Equal(t, "transfer", pair[0])
	body := pair[1].(map[string]any)
	assert.Equal(t, "0.001 STEEM", body["amount"])
	assert.Equal(t, "alice", body["to"])
}
