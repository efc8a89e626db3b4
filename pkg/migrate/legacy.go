package migrate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/papercomputeco/echoes/pkg/triplet"
)

// Legacy storage keys.
const (
	// LegacyMessagesKey held raw agent messages before the buffer existed.
	LegacyMessagesKey = "sofiaMessages"

	// LegacyTripletsKey held parsed messages as one flat list.
	LegacyTripletsKey = "extractedTriplets"

	// LegacyOnChainKey held published triplets as one flat list.
	LegacyOnChainKey = "onChainTriplets"
)

// legacyMessage is an entry of LegacyMessagesKey.
type legacyMessage struct {
	Content struct {
		Text string `json:"text"`
	} `json:"content"`
	CreatedAt int64 `json:"created_at"`
}

// legacyParsed is an entry of LegacyTripletsKey.
type legacyParsed struct {
	Triplets             []triplet.Triplet `json:"triplets"`
	Intention            string            `json:"intention"`
	CreatedAt            int64             `json:"created_at"`
	RawObjectDescription string            `json:"rawObjectDescription"`
	RawObjectURL         string            `json:"rawObjectUrl"`
	SourceMessageID      string            `json:"sourceMessageId"`
	ExtractedAt          int64             `json:"extractedAt"`
}

// legacyOnChain is an entry of LegacyOnChainKey.
type legacyOnChain struct {
	ID              string          `json:"id"`
	Triplet         triplet.Triplet `json:"triplet"`
	AtomVaultID     string          `json:"atomVaultId"`
	TxHash          string          `json:"txHash"`
	Timestamp       int64           `json:"timestamp"`
	Source          string          `json:"source"`
	URL             string          `json:"url"`
	TripleStatus    string          `json:"tripleStatus"`
	OriginalMessage *struct {
		RawObjectDescription string `json:"rawObjectDescription"`
		RawObjectURL         string `json:"rawObjectUrl"`
	} `json:"originalMessage"`
}

func decodeList[T any](key string, raw []byte) ([]T, error) {
	var entries []T
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decoding legacy key %s: %w", key, err)
	}
	return entries, nil
}

// millis converts a legacy epoch-milliseconds timestamp, falling back to
// fallback when unset.
func millis(ms int64, fallback time.Time) time.Time {
	if ms <= 0 {
		return fallback
	}
	return time.UnixMilli(ms).UTC()
}

func legacyMessageID(createdAt int64) string {
	return "legacy_" + strconv.FormatInt(createdAt, 10)
}

// legacyStatus maps a legacy published entry onto the current lifecycle.
func legacyStatus(e legacyOnChain) triplet.Status {
	switch e.TripleStatus {
	case "on-chain", "published":
		return triplet.StatusPublished
	case "atom-only":
		return triplet.StatusAtomOnly
	}
	if e.TxHash != "" {
		return triplet.StatusPublished
	}
	return triplet.StatusAtomOnly
}

func legacyOrigin(source string) triplet.Origin {
	if source == "existing" {
		return triplet.OriginExisting
	}
	return triplet.OriginDiscovered
}
