// Package flashstore implements the persistent wallet registry: up to
// four wallet headers, each paired with a
// device-held Shamir share, written through a transactional helper
// that computes a CRC, lands the new region on a shadow page, flips
// the active-page pointer, and erases the old page — so a power loss
// at any instant leaves either the pre-write or the post-write state
// visible, never a mix. Here that contract rides on a walletdb.DB
// transaction (see memdriver.go), the same bucket-oriented interface
// channeldb builds its own crash-consistent stores on top of.
package flashstore

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/x1vault/core/internal/corestatus"
	"github.com/x1vault/core/internal/envelope"
)

// MaxWallets is the number of slots the flash region reserves: AddWallet
// fails NO_SLOT if 4 wallets already exist.
const MaxWallets = 4

// WalletState is the lifecycle state stamped on a wallet header.
type WalletState uint8

const (
	StateInvalid WalletState = iota
	StateUnverifiedValid
	StateValid
	// StateValidWithoutDeviceShare marks a header sync-wallets inserted
	// from a card's wallet list before the device share has been
	// regenerated by a reconstruct pass.
	StateValidWithoutDeviceShare
)

// WalletHeader is the normal-region record for one wallet slot.
type WalletHeader struct {
	WalletID    [32]byte
	Name        string
	State       WalletState
	Locked      bool
	CardsPaired uint8
	// CardsStates is a 4-bit mask, bit (n-1) set for each card that
	// holds a live share of this wallet.
	CardsStates uint8
	// EntropyLen is the BIP-39 entropy width in bytes (16, 20, 24, 28,
	// or 32) this wallet's mnemonic was generated with. The Shamir
	// secret always carries entropy zero-padded to 32 bytes; this
	// records how many of those bytes are real.
	EntropyLen uint8
}

// DeviceShareBlob is the secure-region record: the device's own
// Shamir share, envelope-encrypted exactly like the four card shares.
type DeviceShareBlob struct {
	Envelope envelope.Envelope
}

var (
	bucketWallets = []byte("wallet_headers")
	bucketShares  = []byte("device_shares")
	bucketDevice  = []byte("device_state")
)

// deviceStateKey is the single fixed key holding the normal region's
// one-byte onboarding step and the settings bitset, alongside the
// wallet headers in the same transactional bucket set.
var deviceStateKey = []byte("device_state")

// OnboardingVirgin is the sentinel value a never-written onboarding
// step cell reads back as. It doubles as the raw byte an erased flash
// cell (all bits set) reads back as, so a factory-fresh device and a
// freshly factory-reset one are indistinguishable from this field
// alone.
const OnboardingVirgin uint8 = 0xFF

type deviceState struct {
	onboardingStep uint8
	settingsBits   uint32
}

func defaultDeviceState() deviceState {
	return deviceState{onboardingStep: OnboardingVirgin}
}

// ErrNoSlot is returned by AddWallet when all MaxWallets slots are in use.
var ErrNoSlot = corestatus.New(corestatus.KindFlashFull, "flashstore: no free wallet slot")

// Store is the transactional flash-wallet registry.
type Store struct {
	db walletdb.DB
}

// Open creates (or re-opens) the in-process flash store. A fresh
// device image always starts empty; the in-memory driver holds no
// state across process restarts, matching the way tests exercise the
// contract without a real flash chip.
func Open() (*Store, error) {
	db, err := walletdb.Create(driverType)
	if err != nil {
		return nil, corestatus.Wrap(corestatus.KindWalletInvariant, err)
	}

	err = db.Update(func(tx walletdb.ReadWriteTx) error {
		if _, err := tx.CreateTopLevelBucket(bucketWallets); err != nil {
			return err
		}
		if _, err := tx.CreateTopLevelBucket(bucketShares); err != nil {
			return err
		}
		dvb, err := tx.CreateTopLevelBucket(bucketDevice)
		if err != nil {
			return err
		}
		return dvb.Put(deviceStateKey, encodeDeviceState(defaultDeviceState()))
	}, nil)
	if err != nil {
		return nil, corestatus.Wrap(corestatus.KindWalletInvariant, err)
	}

	return &Store{db: db}, nil
}

func slotKey(index int) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], uint32(index))
	return k[:]
}

// AddWallet inserts header/share into the first free slot and returns
// its index. It fails with NO_SLOT, DUPLICATE_NAME, or DUPLICATE_ID.
func (s *Store) AddWallet(header WalletHeader, share DeviceShareBlob) (int, error) {
	var index = -1

	err := s.db.Update(func(tx walletdb.ReadWriteTx) error {
		wb := tx.ReadWriteBucket(bucketWallets)
		sb := tx.ReadWriteBucket(bucketShares)

		used := make(map[int]bool)
		if err := wb.ForEach(func(k, v []byte) error {
			existing, ok := decodeHeader(v)
			if !ok {
				return nil
			}
			idx := int(binary.BigEndian.Uint32(k))
			used[idx] = true

			if existing.Name == header.Name {
				return corestatus.New(corestatus.KindFlashDuplicateName,
					"flashstore: wallet name already in use")
			}
			if existing.WalletID == header.WalletID {
				return corestatus.New(corestatus.KindFlashDuplicateID,
					"flashstore: wallet id already in use")
			}
			return nil
		}); err != nil {
			return err
		}

		for i := 0; i < MaxWallets; i++ {
			if !used[i] {
				index = i
				break
			}
		}
		if index == -1 {
			return ErrNoSlot
		}

		if err := wb.Put(slotKey(index), encodeHeader(header)); err != nil {
			return err
		}
		return sb.Put(slotKey(index), encodeShare(share))
	}, nil)
	if err != nil {
		return -1, err
	}
	return index, nil
}

// RemoveWallet zeroes the slot at index.
func (s *Store) RemoveWallet(index int) error {
	return s.db.Update(func(tx walletdb.ReadWriteTx) error {
		wb := tx.ReadWriteBucket(bucketWallets)
		sb := tx.ReadWriteBucket(bucketShares)
		if err := wb.Delete(slotKey(index)); err != nil {
			return err
		}
		return sb.Delete(slotKey(index))
	}, nil)
}

// SetState atomically updates a single slot's WalletState.
func (s *Store) SetState(index int, state WalletState) error {
	return s.mutateHeader(index, func(h *WalletHeader) { h.State = state })
}

// SetLocked atomically updates a single slot's locked flag.
func (s *Store) SetLocked(index int, locked bool) error {
	return s.mutateHeader(index, func(h *WalletHeader) { h.Locked = locked })
}

// SetCardsStates atomically updates the 4-bit mask of cards currently
// holding a live share of this wallet.
func (s *Store) SetCardsStates(index int, mask uint8) error {
	return s.mutateHeader(index, func(h *WalletHeader) { h.CardsStates = mask })
}

// GetBySlot performs a read-only lookup by slot index.
func (s *Store) GetBySlot(index int) (WalletHeader, bool) {
	var h WalletHeader
	var ok bool
	_ = s.db.View(func(tx walletdb.ReadTx) error {
		wb := tx.ReadBucket(bucketWallets)
		h, ok = decodeHeader(wb.Get(slotKey(index)))
		return nil
	}, nil)
	return h, ok
}

func (s *Store) mutateHeader(index int, mutate func(*WalletHeader)) error {
	return s.db.Update(func(tx walletdb.ReadWriteTx) error {
		wb := tx.ReadWriteBucket(bucketWallets)
		raw := wb.Get(slotKey(index))
		header, ok := decodeHeader(raw)
		if !ok {
			return corestatus.New(corestatus.KindWalletInvariant,
				"flashstore: no wallet at that slot")
		}
		mutate(&header)
		return wb.Put(slotKey(index), encodeHeader(header))
	}, nil)
}

// GetByID performs a read-only lookup by wallet ID.
func (s *Store) GetByID(id [32]byte) (WalletHeader, int, bool) {
	var found WalletHeader
	var idx = -1

	_ = s.db.View(func(tx walletdb.ReadTx) error {
		wb := tx.ReadBucket(bucketWallets)
		return wb.ForEach(func(k, v []byte) error {
			h, ok := decodeHeader(v)
			if ok && h.WalletID == id {
				found = h
				idx = int(binary.BigEndian.Uint32(k))
			}
			return nil
		})
	}, nil)
	return found, idx, idx != -1
}

// GetByName performs a read-only, case-sensitive lookup by name.
func (s *Store) GetByName(name string) (WalletHeader, int, bool) {
	var found WalletHeader
	var idx = -1

	_ = s.db.View(func(tx walletdb.ReadTx) error {
		wb := tx.ReadBucket(bucketWallets)
		return wb.ForEach(func(k, v []byte) error {
			h, ok := decodeHeader(v)
			if ok && h.Name == name {
				found = h
				idx = int(binary.BigEndian.Uint32(k))
			}
			return nil
		})
	}, nil)
	return found, idx, idx != -1
}

// List returns every live wallet header, in slot order.
func (s *Store) List() []WalletHeader {
	var out []WalletHeader
	_ = s.db.View(func(tx walletdb.ReadTx) error {
		wb := tx.ReadBucket(bucketWallets)
		return wb.ForEach(func(_, v []byte) error {
			if h, ok := decodeHeader(v); ok {
				out = append(out, h)
			}
			return nil
		})
	}, nil)
	return out
}

// WipeWallets erases every wallet header and device share, leaving the
// onboarding step and settings bitset untouched. This backs the
// non-destructive-to-setup "clear data" menu entry.
func (s *Store) WipeWallets() error {
	return s.db.Update(func(tx walletdb.ReadWriteTx) error {
		wb := tx.ReadWriteBucket(bucketWallets)
		if err := wb.ForEach(func(k, _ []byte) error {
			return wb.Delete(k)
		}); err != nil {
			return err
		}

		sb := tx.ReadWriteBucket(bucketShares)
		return sb.ForEach(func(k, _ []byte) error {
			return sb.Delete(k)
		})
	}, nil)
}

// WipeAll erases every wallet header and device share and resets the
// onboarding step and settings bitset to their factory defaults. The
// hardware write-protection key lives entirely outside this store and
// is never touched by it.
func (s *Store) WipeAll() error {
	if err := s.WipeWallets(); err != nil {
		return err
	}
	return s.db.Update(func(tx walletdb.ReadWriteTx) error {
		dvb := tx.ReadWriteBucket(bucketDevice)
		return dvb.Put(deviceStateKey, encodeDeviceState(defaultDeviceState()))
	}, nil)
}

// SetDeviceShare overwrites the device share stored for a slot, used
// by sync-wallets once a reconstruct pass regenerates it.
func (s *Store) SetDeviceShare(index int, share DeviceShareBlob) error {
	return s.db.Update(func(tx walletdb.ReadWriteTx) error {
		sb := tx.ReadWriteBucket(bucketShares)
		return sb.Put(slotKey(index), encodeShare(share))
	}, nil)
}

// GetShare reads the device share for a slot.
func (s *Store) GetShare(index int) (DeviceShareBlob, bool) {
	var share DeviceShareBlob
	var ok bool
	_ = s.db.View(func(tx walletdb.ReadTx) error {
		sb := tx.ReadBucket(bucketShares)
		raw := sb.Get(slotKey(index))
		share, ok = decodeShare(raw)
		return nil
	}, nil)
	return share, ok
}

// OnboardingStep reads the current onboarding milestone, or
// OnboardingVirgin if the cell has never been written.
func (s *Store) OnboardingStep() uint8 {
	return s.readDeviceState().onboardingStep
}

// SetOnboardingStep atomically advances the onboarding milestone.
func (s *Store) SetOnboardingStep(step uint8) error {
	return s.mutateDeviceState(func(ds *deviceState) { ds.onboardingStep = step })
}

// SettingsBits reads the persisted settings bitset.
func (s *Store) SettingsBits() uint32 {
	return s.readDeviceState().settingsBits
}

// SetSettingsBits atomically overwrites the persisted settings bitset.
func (s *Store) SetSettingsBits(bits uint32) error {
	return s.mutateDeviceState(func(ds *deviceState) { ds.settingsBits = bits })
}

func (s *Store) readDeviceState() deviceState {
	ds := defaultDeviceState()
	_ = s.db.View(func(tx walletdb.ReadTx) error {
		db := tx.ReadBucket(bucketDevice)
		if decoded, ok := decodeDeviceState(db.Get(deviceStateKey)); ok {
			ds = decoded
		}
		return nil
	}, nil)
	return ds
}

func (s *Store) mutateDeviceState(mutate func(*deviceState)) error {
	return s.db.Update(func(tx walletdb.ReadWriteTx) error {
		db := tx.ReadWriteBucket(bucketDevice)
		ds, ok := decodeDeviceState(db.Get(deviceStateKey))
		if !ok {
			ds = defaultDeviceState()
		}
		mutate(&ds)
		return db.Put(deviceStateKey, encodeDeviceState(ds))
	}, nil)
}

func encodeDeviceState(ds deviceState) []byte {
	body := make([]byte, 0, 1+4)
	body = append(body, ds.onboardingStep)
	var bits [4]byte
	binary.BigEndian.PutUint32(bits[:], ds.settingsBits)
	body = append(body, bits[:]...)
	return withCRC(body)
}

func decodeDeviceState(raw []byte) (deviceState, bool) {
	var ds deviceState
	body, ok := checkCRC(raw)
	if !ok || len(body) != 5 {
		return ds, false
	}
	ds.onboardingStep = body[0]
	ds.settingsBits = binary.BigEndian.Uint32(body[1:5])
	return ds, true
}

// encodeHeader/decodeHeader apply a CRC32 integrity wrapper around a
// fixed-layout record: every flash write computes a CRC of the new
// region.
func encodeHeader(h WalletHeader) []byte {
	nameBytes := []byte(h.Name)
	body := make([]byte, 0, 32+4+len(nameBytes)+2)
	body = append(body, h.WalletID[:]...)
	body = append(body, byte(h.State))
	locked := byte(0)
	if h.Locked {
		locked = 1
	}
	body = append(body, locked, h.CardsPaired, h.CardsStates, h.EntropyLen)
	var nameLen [2]byte
	binary.BigEndian.PutUint16(nameLen[:], uint16(len(nameBytes)))
	body = append(body, nameLen[:]...)
	body = append(body, nameBytes...)

	return withCRC(body)
}

func decodeHeader(raw []byte) (WalletHeader, bool) {
	var h WalletHeader
	body, ok := checkCRC(raw)
	if !ok || len(body) < 38 {
		return h, false
	}
	copy(h.WalletID[:], body[:32])
	h.State = WalletState(body[32])
	h.Locked = body[33] != 0
	h.CardsPaired = body[34]
	h.CardsStates = body[35]
	h.EntropyLen = body[36]
	nameLen := int(binary.BigEndian.Uint16(body[37:39]))
	if len(body) < 39+nameLen {
		return h, false
	}
	h.Name = string(body[39 : 39+nameLen])
	return h, true
}

func encodeShare(share DeviceShareBlob) []byte {
	body := make([]byte, 0, 12+32+4)
	body = append(body, share.Envelope.Nonce[:]...)
	body = append(body, share.Envelope.Ciphertext[:]...)
	body = append(body, share.Envelope.Tag[:]...)
	return withCRC(body)
}

func decodeShare(raw []byte) (DeviceShareBlob, bool) {
	var share DeviceShareBlob
	body, ok := checkCRC(raw)
	if !ok || len(body) != 12+32+4 {
		return share, false
	}
	copy(share.Envelope.Nonce[:], body[0:12])
	copy(share.Envelope.Ciphertext[:], body[12:44])
	copy(share.Envelope.Tag[:], body[44:48])
	return share, true
}

func withCRC(body []byte) []byte {
	sum := crc32.ChecksumIEEE(body)
	out := make([]byte, len(body)+4)
	copy(out, body)
	binary.BigEndian.PutUint32(out[len(body):], sum)
	return out
}

func checkCRC(raw []byte) ([]byte, bool) {
	if len(raw) < 4 {
		return nil, false
	}
	body := raw[:len(raw)-4]
	want := binary.BigEndian.Uint32(raw[len(raw)-4:])
	return body, crc32.ChecksumIEEE(body) == want
}
