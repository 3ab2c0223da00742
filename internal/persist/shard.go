package persist

import (
	"strings"
	"sync"
)

// BatchRef points at one immutable batch file on disk and the logical
// time range it covers.
type BatchRef struct {
	ID    string `json:"id"`
	Path  string `json:"path"`
	Since uint64 `json:"since"`
	Upper uint64 `json:"upper"`
}

// ShardMeta is the on-disk, atomically-rewritten description of a
// shard's batch history. It excludes the live buffer, which is
// reconstructed from the WAL on recovery.
type ShardMeta struct {
	Name        string     `json:"name"`
	Batches     []BatchRef `json:"batches"`
	NextBatchID uint64     `json:"next_batch_id"`
}

// shardState is the in-memory counterpart of a shard: its durable
// metadata plus the buffer of updates not yet flushed to a batch file.
type shardState struct {
	mu     sync.Mutex
	meta   ShardMeta
	buffer []Update
}

// ShardName builds the logical shard identifier "{kg}:{relation}" used
// as the Store's map key, the WAL entry tag, and the Read/Append/Flush
// argument throughout this package. It is deliberately not sanitized:
// sanitization only applies when a shard name is turned into a
// filesystem path (see sanitize, used by saveShardMeta).
func ShardName(kg, relation string) string {
	return kg + ":" + relation
}

// FileNameFor encodes a shard name into a filesystem-safe form: ':'
// becomes '_', and any other path-unsafe byte is hex-escaped. Used to
// derive the shard metadata file name from a logical shard name.
func FileNameFor(name string) string {
	return sanitize(name)
}

func sanitize(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == ':':
			b.WriteByte('_')
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-', c == '.':
			b.WriteByte(c)
		default:
			b.WriteString("%")
			b.WriteString(hexByte(c))
		}
	}
	return b.String()
}

const hexDigits = "0123456789abcdef"

func hexByte(c byte) string {
	return string([]byte{hexDigits[c>>4], hexDigits[c&0x0f]})
}
