package accountsdata

// Snapshot is the immutable, point-in-time view of the accounts data
// cache: which account keys matter, the latest signed data seen for
// each, and this node's own local signer record, if any. A Snapshot is
// never mutated in place; every update builds and publishes a new one.
type Snapshot struct {
	// KeysByID maps an account id to the set of account keys considered
	// important for the current and near-future epochs.
	KeysByID map[string]map[AccountKey]struct{}
	// Keys is the flattened union of every set in KeysByID.
	Keys map[AccountKey]struct{}
	// Data maps an account key to the latest signed data seen for it.
	Data map[AccountKey]*SignedAccountData
	// Local is this node's own signer and unsigned template data, if
	// this node is itself a validator account. Nil otherwise.
	Local *LocalRecord
}

// LocalRecord pairs a LocalSigner with the unsigned AccountData template
// used to rebuild a signed record when self-override is detected.
type LocalRecord struct {
	Signer   *LocalSigner
	Template AccountData
}

// emptySnapshot returns a Snapshot with no keys, no data, and no local record.
func emptySnapshot() *Snapshot {
	return &Snapshot{
		KeysByID: make(map[string]map[AccountKey]struct{}),
		Keys:     make(map[AccountKey]struct{}),
		Data:     make(map[AccountKey]*SignedAccountData),
	}
}

// clone returns a shallow structural copy of s: new top-level maps, but
// the SignedAccountData and LocalRecord values themselves are shared,
// since they are treated as immutable once published.
func (s *Snapshot) clone() *Snapshot {
	cp := &Snapshot{
		KeysByID: make(map[string]map[AccountKey]struct{}, len(s.KeysByID)),
		Keys:     make(map[AccountKey]struct{}, len(s.Keys)),
		Data:     make(map[AccountKey]*SignedAccountData, len(s.Data)),
		Local:    s.Local,
	}
	for id, keys := range s.KeysByID {
		ks := make(map[AccountKey]struct{}, len(keys))
		for k := range keys {
			ks[k] = struct{}{}
		}
		cp.KeysByID[id] = ks
	}
	for k := range s.Keys {
		cp.Keys[k] = struct{}{}
	}
	for k, v := range s.Data {
		cp.Data[k] = v
	}
	return cp
}

// isNew reports whether d represents a strictly newer record than
// whatever the snapshot already holds for d.AccountKey, and whether
// d.AccountKey is even one the cache tracks (§4.5).
func isNew(s *Snapshot, d *SignedAccountData) bool {
	if _, tracked := s.Keys[d.AccountKey]; !tracked {
		return false
	}
	existing, ok := s.Data[d.AccountKey]
	if !ok {
		return true
	}
	return existing.Version < d.Version
}

// tryInsert applies the try_insert operation from §4.5 against cp (a
// clone already under construction) and returns the value actually
// inserted, or nil if d was not new.
func tryInsert(cp *Snapshot, clock Clock, d *SignedAccountData) (*SignedAccountData, error) {
	if !isNew(cp, d) {
		return nil, nil
	}

	if cp.Local != nil && cp.Local.Signer.PublicKey() == d.AccountKey {
		existing := cp.Data[d.AccountKey]
		nextVersion := d.Version + 1
		template := cp.Local.Template
		template.Timestamp = clock.NowUTC()
		rebuilt, err := cp.Local.Signer.Sign(nextVersion, template)
		if err != nil {
			return nil, err
		}
		_ = existing
		cp.Data[d.AccountKey] = rebuilt
		return rebuilt, nil
	}

	cp.Data[d.AccountKey] = d
	return d, nil
}

// setLocalOnClone applies set_local (§4.5) against cp, a clone already
// under construction, returning the freshly signed record if the local
// key is one the cache tracks.
func setLocalOnClone(cp *Snapshot, clock Clock, signer *LocalSigner, template AccountData) (*SignedAccountData, error) {
	cp.Local = &LocalRecord{Signer: signer, Template: template}

	key := signer.PublicKey()
	if _, tracked := cp.Keys[key]; !tracked {
		return nil, nil
	}

	version := uint64(0)
	if existing, ok := cp.Data[key]; ok {
		version = existing.Version
	}

	data := template
	data.Timestamp = clock.NowUTC()
	signed, err := signer.Sign(version+1, data)
	if err != nil {
		return nil, err
	}
	cp.Data[key] = signed
	return signed, nil
}
