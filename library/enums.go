/*
enums.go - Closed tag types with lookup tables

PURPOSE:
  Every enumerated concept of the lending domain (member types, book
  categories, statuses, transaction kinds) is a string tag backed by a
  lookup table of display name, description and numeric parameters.
  Behaviour hangs off the tag through table lookups, not per-value types.

PARSING:
  Shells hand us free text. Parse* accepts either the tag ("senior_citizen")
  or the display name ("Senior Citizen"), case-insensitively, and returns an
  InvalidSelectionError for anything else.

SEE ALSO:
  - types.go: Book, Member, Transaction use these tags
  - errors.go: InvalidSelectionError
*/
package library

import "strings"

// TagInfo is the display metadata attached to every tag.
type TagInfo struct {
	DisplayName string
	Description string
}

// parseTag resolves free text against an ordered tag table.
func parseTag[T ~string](field, s string, order []T, info func(T) TagInfo) (T, error) {
	needle := strings.TrimSpace(s)
	for _, t := range order {
		if strings.EqualFold(string(t), needle) || strings.EqualFold(info(t).DisplayName, needle) {
			return t, nil
		}
	}
	var zero T
	return zero, &InvalidSelectionError{Field: field, Value: s}
}

// =============================================================================
// MEMBER TYPE
// =============================================================================

// MemberType fixes a member's borrowing limit and membership duration.
type MemberType string

const (
	MemberStudent       MemberType = "student"
	MemberFaculty       MemberType = "faculty"
	MemberStaff         MemberType = "staff"
	MemberPublic        MemberType = "public"
	MemberResearcher    MemberType = "researcher"
	MemberSeniorCitizen MemberType = "senior_citizen"
)

// MemberTypeInfo is the lookup row for a MemberType.
type MemberTypeInfo struct {
	TagInfo
	MaxBooks       int
	DurationMonths int
}

var memberTypeOrder = []MemberType{
	MemberStudent, MemberFaculty, MemberStaff, MemberPublic, MemberResearcher, MemberSeniorCitizen,
}

var memberTypes = map[MemberType]MemberTypeInfo{
	MemberStudent:       {TagInfo{"Student", "Student membership with basic privileges"}, 5, 12},
	MemberFaculty:       {TagInfo{"Faculty", "Faculty membership with extended privileges"}, 10, 24},
	MemberStaff:         {TagInfo{"Staff", "Staff membership with standard privileges"}, 7, 12},
	MemberPublic:        {TagInfo{"Public", "General public membership"}, 3, 6},
	MemberResearcher:    {TagInfo{"Researcher", "Research membership with specialized access"}, 15, 12},
	MemberSeniorCitizen: {TagInfo{"Senior Citizen", "Senior citizen membership with special benefits"}, 5, 12},
}

func (t MemberType) Info() MemberTypeInfo { return memberTypes[t] }
func (t MemberType) Valid() bool          { _, ok := memberTypes[t]; return ok }
func (t MemberType) MaxBooks() int        { return memberTypes[t].MaxBooks }
func (t MemberType) DurationMonths() int  { return memberTypes[t].DurationMonths }
func (t MemberType) String() string       { return memberTypes[t].DisplayName }

// MemberTypes lists member types in menu order.
func MemberTypes() []MemberType { return append([]MemberType(nil), memberTypeOrder...) }

func ParseMemberType(s string) (MemberType, error) {
	return parseTag("member_type", s, memberTypeOrder, func(t MemberType) TagInfo { return memberTypes[t].TagInfo })
}

// =============================================================================
// BOOK CATEGORY
// =============================================================================

type Category string

const (
	CategoryFiction             Category = "fiction"
	CategoryNonFiction          Category = "non_fiction"
	CategoryScienceTechnology   Category = "science_technology"
	CategoryHistoryPolitics     Category = "history_politics"
	CategoryBusinessEconomics   Category = "business_economics"
	CategoryHealthMedicine      Category = "health_medicine"
	CategoryArtsLiterature      Category = "arts_literature"
	CategoryEducationReference  Category = "education_reference"
	CategoryChildrenYoungAdult  Category = "children_young_adult"
	CategoryReligionPhilosophy  Category = "religion_philosophy"
	CategoryTravelGeography     Category = "travel_geography"
	CategoryBiography           Category = "biography_autobiography"
	CategoryComputerProgramming Category = "computer_programming"
	CategoryOther               Category = "other"
)

var categoryOrder = []Category{
	CategoryFiction, CategoryNonFiction, CategoryScienceTechnology, CategoryHistoryPolitics,
	CategoryBusinessEconomics, CategoryHealthMedicine, CategoryArtsLiterature, CategoryEducationReference,
	CategoryChildrenYoungAdult, CategoryReligionPhilosophy, CategoryTravelGeography, CategoryBiography,
	CategoryComputerProgramming, CategoryOther,
}

var categories = map[Category]TagInfo{
	CategoryFiction:             {"Fiction", "Literary works of imagination"},
	CategoryNonFiction:          {"Non-Fiction", "Factual and informational works"},
	CategoryScienceTechnology:   {"Science & Technology", "Scientific and technical publications"},
	CategoryHistoryPolitics:     {"History & Politics", "Historical and political works"},
	CategoryBusinessEconomics:   {"Business & Economics", "Business and economic literature"},
	CategoryHealthMedicine:      {"Health & Medicine", "Medical and health-related publications"},
	CategoryArtsLiterature:      {"Arts & Literature", "Artistic and literary works"},
	CategoryEducationReference:  {"Education & Reference", "Educational materials and reference books"},
	CategoryChildrenYoungAdult:  {"Children & Young Adult", "Books for younger readers"},
	CategoryReligionPhilosophy:  {"Religion & Philosophy", "Religious and philosophical texts"},
	CategoryTravelGeography:     {"Travel & Geography", "Travel guides and geographical works"},
	CategoryBiography:           {"Biography & Autobiography", "Life stories and memoirs"},
	CategoryComputerProgramming: {"Computer & Programming", "Technology and programming books"},
	CategoryOther:               {"Other", "Miscellaneous categories"},
}

func (c Category) Info() TagInfo  { return categories[c] }
func (c Category) Valid() bool    { _, ok := categories[c]; return ok }
func (c Category) String() string { return categories[c].DisplayName }

func Categories() []Category { return append([]Category(nil), categoryOrder...) }

func ParseCategory(s string) (Category, error) {
	return parseTag("category", s, categoryOrder, Category.Info)
}

// =============================================================================
// BOOK STATUS
// =============================================================================

type BookStatus string

const (
	BookAvailable   BookStatus = "available"
	BookBorrowed    BookStatus = "borrowed"
	BookReserved    BookStatus = "reserved"
	BookMaintenance BookStatus = "maintenance"
	BookLost        BookStatus = "lost"
	BookDamaged     BookStatus = "damaged"
	BookWithdrawn   BookStatus = "withdrawn"
)

var bookStatusOrder = []BookStatus{
	BookAvailable, BookBorrowed, BookReserved, BookMaintenance, BookLost, BookDamaged, BookWithdrawn,
}

var bookStatuses = map[BookStatus]TagInfo{
	BookAvailable:   {"Available", "Book is available for borrowing"},
	BookBorrowed:    {"Borrowed", "Book is currently borrowed by a member"},
	BookReserved:    {"Reserved", "Book is reserved for a specific member"},
	BookMaintenance: {"Under Maintenance", "Book is being repaired or maintained"},
	BookLost:        {"Lost", "Book has been reported as lost"},
	BookDamaged:     {"Damaged", "Book is damaged and cannot be borrowed"},
	BookWithdrawn:   {"Withdrawn", "Book has been permanently removed from circulation"},
}

func (s BookStatus) Info() TagInfo       { return bookStatuses[s] }
func (s BookStatus) Valid() bool         { _, ok := bookStatuses[s]; return ok }
func (s BookStatus) String() string      { return bookStatuses[s].DisplayName }
func (s BookStatus) CanBeBorrowed() bool { return s == BookAvailable }
func (s BookStatus) IsActive() bool      { return s != BookLost && s != BookWithdrawn }

func BookStatuses() []BookStatus { return append([]BookStatus(nil), bookStatusOrder...) }

func ParseBookStatus(s string) (BookStatus, error) {
	return parseTag("book_status", s, bookStatusOrder, BookStatus.Info)
}

// =============================================================================
// MEMBER STATUS
// =============================================================================

type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberSuspended MemberStatus = "suspended"
	MemberExpired   MemberStatus = "expired"
	MemberBlocked   MemberStatus = "blocked"
	MemberInactive  MemberStatus = "inactive"
)

var memberStatusOrder = []MemberStatus{MemberActive, MemberSuspended, MemberExpired, MemberBlocked, MemberInactive}

var memberStatuses = map[MemberStatus]TagInfo{
	MemberActive:    {"Active", "Member is active and can use all library services"},
	MemberSuspended: {"Suspended", "Member is temporarily suspended from borrowing"},
	MemberExpired:   {"Expired", "Membership has expired and needs renewal"},
	MemberBlocked:   {"Blocked", "Member is blocked due to policy violations"},
	MemberInactive:  {"Inactive", "Member account is inactive but can be reactivated"},
}

func (s MemberStatus) Info() TagInfo   { return memberStatuses[s] }
func (s MemberStatus) Valid() bool     { _, ok := memberStatuses[s]; return ok }
func (s MemberStatus) String() string  { return memberStatuses[s].DisplayName }
func (s MemberStatus) CanBorrow() bool { return s == MemberActive }
func (s MemberStatus) CanRenew() bool  { return s == MemberExpired || s == MemberInactive }

func MemberStatuses() []MemberStatus { return append([]MemberStatus(nil), memberStatusOrder...) }

func ParseMemberStatus(s string) (MemberStatus, error) {
	return parseTag("member_status", s, memberStatusOrder, MemberStatus.Info)
}

// =============================================================================
// TRANSACTION TYPE / STATUS
// =============================================================================

type TransactionType string

const (
	TxBorrow            TransactionType = "borrow"
	TxReturn            TransactionType = "return"
	TxRenew             TransactionType = "renew"
	TxReserve           TransactionType = "reserve"
	TxCancelReservation TransactionType = "cancel_reservation"
	TxFinePayment       TransactionType = "fine_payment"
	TxLostBook          TransactionType = "lost_book"
	TxDamagedBook       TransactionType = "damaged_book"
)

var transactionTypes = map[TransactionType]TagInfo{
	TxBorrow:            {"Borrow", "Book borrowed by a member"},
	TxReturn:            {"Return", "Book returned by a member"},
	TxRenew:             {"Renew", "Loan period extended"},
	TxReserve:           {"Reserve", "Book reserved for a member"},
	TxCancelReservation: {"Cancel Reservation", "Reservation cancelled"},
	TxFinePayment:       {"Fine Payment", "Fine paid by a member"},
	TxLostBook:          {"Lost Book", "Borrowed book reported lost"},
	TxDamagedBook:       {"Damaged Book", "Borrowed book returned damaged"},
}

func (t TransactionType) Info() TagInfo  { return transactionTypes[t] }
func (t TransactionType) Valid() bool    { _, ok := transactionTypes[t]; return ok }
func (t TransactionType) String() string { return transactionTypes[t].DisplayName }

var transactionTypeOrder = []TransactionType{
	TxBorrow, TxReturn, TxRenew, TxReserve, TxCancelReservation, TxFinePayment, TxLostBook, TxDamagedBook,
}

func TransactionTypes() []TransactionType {
	return append([]TransactionType(nil), transactionTypeOrder...)
}

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxActive    TransactionStatus = "active"
	TxReturned  TransactionStatus = "returned"
	TxOverdue   TransactionStatus = "overdue"
	TxCancelled TransactionStatus = "cancelled"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
)

var transactionStatuses = map[TransactionStatus]TagInfo{
	TxPending:   {"Pending", "Transaction is pending processing"},
	TxActive:    {"Active", "Transaction is active (book currently borrowed)"},
	TxReturned:  {"Returned", "Book has been returned successfully"},
	TxOverdue:   {"Overdue", "Book return is overdue"},
	TxCancelled: {"Cancelled", "Transaction was cancelled"},
	TxCompleted: {"Completed", "Transaction completed successfully"},
	TxFailed:    {"Failed", "Transaction failed to process"},
}

func (s TransactionStatus) Info() TagInfo  { return transactionStatuses[s] }
func (s TransactionStatus) Valid() bool    { _, ok := transactionStatuses[s]; return ok }
func (s TransactionStatus) String() string { return transactionStatuses[s].DisplayName }

var transactionStatusOrder = []TransactionStatus{
	TxPending, TxActive, TxReturned, TxOverdue, TxCancelled, TxCompleted, TxFailed,
}

func TransactionStatuses() []TransactionStatus {
	return append([]TransactionStatus(nil), transactionStatusOrder...)
}

// IsActiveLoan reports whether the book is still out.
func (s TransactionStatus) IsActiveLoan() bool { return s == TxActive || s == TxOverdue }

// IsTerminal reports whether the record may no longer change.
func (s TransactionStatus) IsTerminal() bool {
	return s == TxReturned || s == TxCompleted || s == TxCancelled
}
