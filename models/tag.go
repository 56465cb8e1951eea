package models

// Tag is a label applied to an inbox thread.
type Tag string

const (
	TagViewingArranged   Tag = "viewing arranged"
	TagViewingCompleted  Tag = "viewing completed"
	TagSuitable          Tag = "suitable"
	TagMaybe             Tag = "maybe"
	TagRejected          Tag = "rejected"
	TagWaitingPaperwork  Tag = "waiting paperwork"
	TagWaitingResponse   Tag = "waiting response"
	TagShouldAnswer      Tag = "should answer"
	TagOnHold            Tag = "on hold"
	TagIndirect          Tag = "indirect"
	TagPriceMissing      Tag = "price missing"
	TagNoLinks           Tag = "no links"
	TagPartiallyRejected Tag = "partially rejected"
	TagBuddyUp           Tag = "buddy up"
)
