package sample

// Vendor and client identifiers that gate pipeline stages.
const (
	VendorRNC = 2
	VendorL2  = 5

	ClientTarrance = 3
)

// System constant column names. These six columns are appended to every
// materialized table regardless of source content and are never removable
// by exclusion rules.
const (
	ColVendorID  = "VENDOR_ID"
	ColTerminate = "TERMINATE"
	ColCIDL1     = "CID_L1"
	ColCIDL2     = "CID_L2"
	ColCIDC1     = "CID_C1"
	ColCIDC2     = "CID_C2"
)

// Tracking columns stamped by the normalizer during multi-file merges.
const (
	ColFile       = "FILE"
	ColSourceFile = "_SOURCE_FILE"
	ColFileIndex  = "_FILE_INDEX"
)

// Well-known data columns the pipeline reads and writes.
const (
	ColLand       = "LAND"
	ColCell       = "CELL"
	ColPhone      = "PHONE"
	ColIsCell     = "ISCELL"
	ColRegion     = "REGION"
	ColCalcParty  = "CALCPARTY"
	ColParty      = "PARTY"
	ColRegDate    = "REGISTRATIONDATE"
	ColSource     = "SOURCE"
	ColIAge       = "IAGE"
	ColBirthYear  = "BIRTHYEAR"
	ColAgeRange   = "IAGERANGE"
	ColBatch      = "BATCH"
	ColVType      = "VTYPE"
	ColContactNum = "N"
	ColGender     = "GENDER"
	ColFirstName  = "FIRSTNAME"
	ColLastName   = "LASTNAME"
	ColVFreq      = "VFREQ"
	ColVRecent    = "VRECENT"
)

// ConstantColumn pairs a system constant column with its fixed default.
type ConstantColumn struct {
	Name    string
	Default string
}

// ConstantColumns returns the six system constant columns in their
// canonical order. Caller-ID slots default to empty string rather than
// NULL so the never-null invariant holds from materialization time.
func ConstantColumns() []ConstantColumn {
	return []ConstantColumn{
		{Name: ColVendorID, Default: "0"},
		{Name: ColTerminate, Default: "0"},
		{Name: ColCIDL1, Default: ""},
		{Name: ColCIDL2, Default: ""},
		{Name: ColCIDC1, Default: ""},
		{Name: ColCIDC2, Default: ""},
	}
}

// PhoneColumns lists the columns treated as phone-bearing by the
// formatting stage.
func PhoneColumns() []string {
	return []string{ColLand, ColCell, ColPhone}
}

// ProtectedColumns are exclusion-immune: the file tracking columns plus
// the system constants.
func ProtectedColumns() map[string]bool {
	protected := map[string]bool{
		ColFile:       true,
		ColSourceFile: true,
		ColFileIndex:  true,
	}
	for _, c := range ConstantColumns() {
		protected[c.Name] = true
	}
	return protected
}

// VoterHistoryColumns are the biennial general-election columns the
// voter-frequency stage summarizes, most recent first.
func VoterHistoryColumns() []string {
	return []string{"VH22G", "VH20G", "VH18G", "VH16G"}
}
