// Package lsmgo provides an embedded log-structured merge storage core for
// fixed-layout records.
//
// The heart of the engine is a pair of fixed-capacity in-memory tables: the
// active one absorbs writes append-only, and on fill (or checkpoint) it is
// frozen, sorted, flushed to a compressed sorted run in the background, and
// recycled. Memory for the tables is allocated once at open; the engine runs
// with a statically known memory ceiling.
//
// # Quick Start
//
//	policy := lsmgo.Policy[uint64, Account]{
//	    Capacity: 1 << 16,
//	    KeyOf:    func(a *Account) uint64 { return a.ID },
//	    Compare:  func(x, y uint64) int { return cmp.Compare(x, y) },
//	    TombstoneFrom: func(id uint64) Account { return Account{ID: id, Flags: FlagTombstone} },
//	    IsTombstone:   func(a *Account) bool { return a.Flags&FlagTombstone != 0 },
//	}
//
//	db, _ := lsmgo.Open(ctx, policy, accountCodec{}, lsmgo.Local("./data"))
//	defer db.Close(ctx)
//
//	_ = db.Put(ctx, Account{ID: 42, Balance: 1000})
//	acc, _ := db.Get(ctx, 42)
//
// Cloud mode:
//
//	s3Store, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("ledger/"))
//	db, _ := lsmgo.Open(ctx, policy, accountCodec{}, lsmgo.Remote(s3Store))
//
// # Durability Model
//
// Writes buffer in the active table; a full table or an explicit Checkpoint
// makes them durable:
//
//	db.Put(ctx, account)     // buffered in memory
//	db.Checkpoint(ctx)       // durable after this
//
// # Key Features
//
//   - Fixed-capacity tables, no allocation after open
//   - Deferred sort: appends are O(1), sorting happens at freeze
//   - Last-writer-wins duplicate handling via stable sort + upper-bound reads
//   - Compressed, checksummed sorted runs (zstd/lz4)
//   - Pluggable blob storage (local FS, S3, MinIO)
//   - Write-through lookup cache
package lsmgo
