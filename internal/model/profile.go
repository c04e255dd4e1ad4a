package model

import "slices"

const (
	// StatusOffline is the presence of a profile that has not reported in
	StatusOffline = "offline"
	// DefaultUsername is used until the remote service reports the real one
	DefaultUsername = "Player"
	// FallbackCountryCode is stored when a fetched profile has no country
	FallbackCountryCode = "US"
)

// BattleRoomState is a peer's position inside a battle room
type BattleRoomState struct {
	IsSpectator bool `json:"isSpectator"`
	IsReady     bool `json:"isReady"`
	TeamID      int  `json:"teamId"`
}

// PeerProfile is a cached snapshot of an account's public attributes.
// The record for the local identity carries IsMe and a Self block.
type PeerProfile struct {
	ID              PeerID          `json:"userId"`
	Username        string          `json:"username"`
	DisplayName     string          `json:"displayName"`
	ClanID          *string         `json:"clanId"`
	PartyID         *string         `json:"partyId"`
	CountryCode     string          `json:"countryCode"`
	Status          string          `json:"status"`
	BattleRoomState BattleRoomState `json:"battleRoomState"`
	IsMe            bool            `json:"isMe"`
	Self            *SelfDetails    `json:"self,omitempty"`
}

// SelfDetails holds the attributes only the local identity's record has
type SelfDetails struct {
	Permissions []string `json:"permissions"`
	Friends     []PeerID `json:"friends"`
	Outgoing    []PeerID `json:"outgoing"`
	Incoming    []PeerID `json:"incoming"`
	Ignored     []PeerID `json:"ignored"`
}

// SelfProfile is the local identity's authoritative view of itself
type SelfProfile struct {
	ID              PeerID           `json:"userId"`
	Username        string           `json:"username"`
	DisplayName     string           `json:"displayName"`
	ClanID          *string          `json:"clanId"`
	PartyID         *string          `json:"partyId"`
	CountryCode     string           `json:"countryCode"`
	Status          string           `json:"status"`
	Permissions     []string         `json:"permissions"`
	BattleRoomState BattleRoomState  `json:"battleRoomState"`
	Ignored         PeerSet          `json:"ignored"`
	Relationships   *RelationshipSet `json:"relationships"`
}

// NewSelfProfile returns the profile used before anything is known
func NewSelfProfile() *SelfProfile {
	return &SelfProfile{
		Username:      DefaultUsername,
		Status:        StatusOffline,
		Permissions:   []string{},
		Ignored:       NewPeerSet(),
		Relationships: NewRelationshipSet(),
	}
}

// Clone returns a deep copy
func (p *SelfProfile) Clone() *SelfProfile {
	out := *p
	out.ClanID = cloneString(p.ClanID)
	out.PartyID = cloneString(p.PartyID)
	out.Permissions = slices.Clone(p.Permissions)
	out.Ignored = p.Ignored.Clone()
	out.Relationships = p.Relationships.Clone()
	return &out
}

// Record converts the profile into the cache record marked as self
func (p *SelfProfile) Record() *PeerProfile {
	return &PeerProfile{
		ID:              p.ID,
		Username:        p.Username,
		DisplayName:     p.DisplayName,
		ClanID:          cloneString(p.ClanID),
		PartyID:         cloneString(p.PartyID),
		CountryCode:     p.CountryCode,
		Status:          p.Status,
		BattleRoomState: p.BattleRoomState,
		IsMe:            true,
		Self: &SelfDetails{
			Permissions: slices.Clone(p.Permissions),
			Friends:     p.Relationships.Friends.Slice(),
			Outgoing:    p.Relationships.Outgoing.Slice(),
			Incoming:    p.Relationships.Incoming.Slice(),
			Ignored:     p.Ignored.Slice(),
		},
	}
}

// Hydrate overwrites the profile from a cached self record. The
// RelationshipSet and ignored set are repopulated in place so existing
// references observe the change.
func (p *SelfProfile) Hydrate(rec *PeerProfile) {
	p.ID = rec.ID
	p.Username = rec.Username
	p.DisplayName = rec.DisplayName
	p.ClanID = cloneString(rec.ClanID)
	p.PartyID = cloneString(rec.PartyID)
	p.CountryCode = rec.CountryCode
	p.Status = rec.Status
	p.BattleRoomState = rec.BattleRoomState

	if rec.Self == nil {
		return
	}
	p.SetPermissions(rec.Self.Permissions)
	p.Ignored.Clear()
	for _, id := range rec.Self.Ignored {
		p.Ignored.Add(id)
	}
	p.Relationships.Replace(RelationshipSnapshot{
		Friends:  rec.Self.Friends,
		Outgoing: rec.Self.Outgoing,
		Incoming: rec.Self.Incoming,
	})
}

// SetPermissions replaces the permission set, sorted and deduplicated
func (p *SelfProfile) SetPermissions(perms []string) {
	p.Permissions = normalizePermissions(perms)
}

// HasPermission reports whether the local identity holds perm
func (p *SelfProfile) HasPermission(perm string) bool {
	_, found := slices.BinarySearch(p.Permissions, perm)
	return found
}

func normalizePermissions(perms []string) []string {
	out := slices.Clone(perms)
	if out == nil {
		out = []string{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
