// Package settings implements the persisted settings bitset: a
// handful of named boolean toggles rendered as the settings menu's
// entries, plus the two destructive operations (factory reset, clear
// data) those entries can trigger.
package settings

import (
	"github.com/x1vault/core/internal/cardsession"
	"github.com/x1vault/core/internal/flashstore"
)

// Flag is one persisted settings bit.
type Flag uint32

const (
	// FlagLogExport enables exporting the device debug log over USB.
	FlagLogExport Flag = 1 << iota
	// FlagPassphrase enables the optional BIP-39 passphrase prompt on
	// wallet creation and restore.
	FlagPassphrase
	// FlagRawCalldata shows raw transaction calldata instead of a
	// decoded summary during signing review.
	FlagRawCalldata
	// FlagDisplayRotation flips the screen to the rotated orientation.
	FlagDisplayRotation
)

// Settings wraps the persisted bitset.
type Settings struct {
	store *flashstore.Store
}

// New returns a Settings view backed by store.
func New(store *flashstore.Store) *Settings {
	return &Settings{store: store}
}

// Get reports whether flag is currently set.
func (s *Settings) Get(flag Flag) bool {
	return s.store.SettingsBits()&uint32(flag) != 0
}

// Toggle flips flag and persists the result.
func (s *Settings) Toggle(flag Flag) error {
	bits := s.store.SettingsBits() ^ uint32(flag)
	log.Debugf("settings: toggled flag %#x, bits now %#x", uint32(flag), bits)
	return s.store.SetSettingsBits(bits)
}

// ClearData erases every wallet header and device share, but leaves
// onboarding progress, the settings bitset and the pairing keystore
// untouched. This is the non-destructive-to-pairing
// "clear data" menu entry, distinct from FactoryReset below.
func (s *Settings) ClearData() error {
	return s.store.WipeWallets()
}

// FactoryReset erases wallet headers, device shares, onboarding
// progress, settings, and the card pairing keystore. The hardware
// write-protection key is not part of any of these and is left in
// place, since it has no bearing on user data and re-deriving it would
// orphan any card that was paired against the old key.
func FactoryReset(store *flashstore.Store, keystore cardsession.KeyStore) error {
	if err := store.WipeAll(); err != nil {
		return err
	}
	keystore.Clear()
	return nil
}
