package events

// Event types, also used as routing keys
const (
	LendingRequested = "lending.requested"
	LendingIssued    = "lending.issued"
	LendingRejected  = "lending.rejected"
	LendingReturned  = "lending.returned"
	LendingRevoked   = "lending.revoked"
	LendingExpired   = "lending.expired"
	LendingFeedback  = "lending.feedback"
	LendingPurchased = "lending.purchased"

	CatalogSectionCreated = "catalog.section.created"
	CatalogSectionUpdated = "catalog.section.updated"
	CatalogSectionDeleted = "catalog.section.deleted"
	CatalogBookCreated    = "catalog.book.created"
	CatalogBookUpdated    = "catalog.book.updated"
	CatalogBookDeleted    = "catalog.book.deleted"
)
