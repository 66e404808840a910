// Command prefetchd wires the prefetch cache and the accounts data cache
// together behind a minimal CLI: a KVStore, a trie.ShardCache, a
// trie.PrefetchAPI and an accountsdata.Cache, so every package in this
// repository has at least one reachable call path from main.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/eth2030/eth2030/accountsdata"
	"github.com/eth2030/eth2030/crypto"
	"github.com/eth2030/eth2030/log"
	"github.com/eth2030/eth2030/metrics"
	"github.com/eth2030/eth2030/trie"
	"github.com/eth2030/eth2030/types"
	"github.com/urfave/cli/v2"
)

var (
	shardCacheBytesFlag = &cli.IntFlag{
		Name:  "shard-cache-bytes",
		Usage: "size in bytes of the hot trie-node cache",
		Value: 32 * 1024 * 1024,
	}
	stagingBytesFlag = &cli.Uint64Flag{
		Name:  "staging-bytes",
		Usage: "byte budget for in-flight prefetch reservations",
		Value: trie.MaxStagingBytes,
	}
	recentRootsFlag = &cli.IntFlag{
		Name:  "recent-roots",
		Usage: "number of recently prefetched roots to remember",
		Value: 128,
	}
	rootFlag = &cli.StringFlag{
		Name:  "root",
		Usage: "hex-encoded trie root hash to prefetch",
	}
	refreshFlag = &cli.DurationFlag{
		Name:  "advertise-interval",
		Usage: "how often to re-sign and emit this node's own account data",
		Value: 30 * time.Second,
	}
)

func main() {
	app := &cli.App{
		Name:  "prefetchd",
		Usage: "trie prefetch cache and validator accounts-data cache demo daemon",
		Flags: []cli.Flag{
			shardCacheBytesFlag,
			stagingBytesFlag,
			recentRootsFlag,
			rootFlag,
			refreshFlag,
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Default().Error("prefetchd: fatal", "err", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := log.Default().Module("prefetchd")
	reg := metrics.DefaultRegistry

	store := trie.NewMemoryKVStore()
	shard := trie.NewShardCache(c.Int(shardCacheBytesFlag.Name))
	staging := trie.NewStagingArea(c.Uint64(stagingBytesFlag.Name), reg)

	recentRoots, err := trie.NewRecentRootsCache(c.Int(recentRootsFlag.Name))
	if err != nil {
		return fmt.Errorf("prefetchd: building recent-roots cache: %w", err)
	}

	prefetchStorage := trie.NewPrefetchingStorage(shard, staging, store, reg)
	cachingStorage := trie.NewCachingStorage(shard, staging, store)
	api := trie.NewPrefetchAPI(prefetchStorage, reg)

	root, err := parseRoot(c.String(rootFlag.Name))
	if err != nil {
		return err
	}
	if recentRoots.Seen(root) {
		logger.Info("root prefetched recently, skipping walk", "root", root)
	} else {
		api.StartIOThread(root)
		defer api.Stop()
	}

	view, err := trie.NewResolvableTrie(root, cachingStorage)
	if err != nil {
		return fmt.Errorf("prefetchd: opening trie view: %w", err)
	}
	if _, err := view.Get(nil); err != nil && err != trie.ErrNotFound {
		return fmt.Errorf("prefetchd: reading from trie view: %w", err)
	}

	accounts := accountsdata.New(reg)
	signer, err := runAccountsDemo(logger, accounts)
	if err != nil {
		return err
	}

	template := accountsdata.AccountData{PeerID: "local", AccountID: "validator-0"}
	out, stop := accounts.RefreshInterval(accountsdata.SystemClock{}, signer, template, c.Duration(refreshFlag.Name))
	select {
	case signed := <-out:
		logger.Info("advertised local account data", "version", signed.Version)
	case <-time.After(100 * time.Millisecond):
		logger.Debug("no advertise tick observed before shutdown")
	}
	stop()

	logger.Info("prefetchd: ready",
		"shard_hit_rate", shard.HitRate(),
		"recent_roots", recentRoots.Len(),
	)
	return nil
}

// runAccountsDemo registers a freshly generated local signer with cache,
// mirroring the way a validator node claims its own account key at
// startup, and returns the signer so the caller can keep advertising it.
func runAccountsDemo(logger *log.Logger, cache *accountsdata.Cache) (*accountsdata.LocalSigner, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("prefetchd: generating local signer key: %w", err)
	}
	signer := accountsdata.NewLocalSigner(priv)

	keysByID := map[string]map[accountsdata.AccountKey]struct{}{
		"validator-0": {signer.PublicKey(): struct{}{}},
	}
	cache.SetKeys(keysByID)
	logger.Info("registered local validator account key", "key", signer.PublicKey())
	return signer, nil
}

func parseRoot(s string) (types.Hash, error) {
	if s == "" {
		return types.Hash{}, nil
	}
	b, err := hex.DecodeString(trimHexPrefix(s))
	if err != nil {
		return types.Hash{}, fmt.Errorf("prefetchd: invalid --root: %w", err)
	}
	var h types.Hash
	if len(b) != len(h) {
		return types.Hash{}, fmt.Errorf("prefetchd: --root must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
