package spareroom

import "room-triage/models"

// tagIDs maps each inbox label to the DOM id of its entry in the label menu.
var tagIDs = map[models.Tag]string{
	models.TagViewingArranged:   "add_label_354310",
	models.TagViewingCompleted:  "add_label_354313",
	models.TagSuitable:          "add_label_354316",
	models.TagMaybe:             "add_label_354319",
	models.TagRejected:          "add_label_354322",
	models.TagWaitingPaperwork:  "add_label_354325",
	models.TagWaitingResponse:   "add_label_432928",
	models.TagShouldAnswer:      "add_label_432949",
	models.TagOnHold:            "add_label_435079",
	models.TagIndirect:          "add_label_1466974",
	models.TagPriceMissing:      "add_label_1481816",
	models.TagNoLinks:           "add_label_1481817",
	models.TagPartiallyRejected: "add_label_1482847",
	models.TagBuddyUp:           "add_label_1482896",
}
