package rsvptoken

// BatchItem is one guest's entry in a batch issuance.
type BatchItem struct {
	GuestID    int64
	GuestEmail string
	GuestName  string
	Issued
}

// GenerateBatchRSVPTokens issues one event-level token per guest, in input order.
//
// It fails fast: the first guest that cannot be issued aborts the batch with a
// BatchError and no partial result is returned.
func (m *Manager) GenerateBatchRSVPTokens(guests []Guest, opts Options) ([]BatchItem, error) {
	out := make([]BatchItem, 0, len(guests))
	for i, g := range guests {
		issued, err := m.GenerateRSVPToken(g, opts)
		if err != nil {
			return nil, BatchError{Index: i, GuestID: g.GuestID, Err: err}
		}
		out = append(out, BatchItem{
			GuestID:    g.GuestID,
			GuestEmail: g.Email,
			GuestName:  g.Name(),
			Issued:     issued,
		})
	}
	return out, nil
}
