package models

// ClassName identifies one of the fixed school classes.
type ClassName string

const (
	ClassPrep1      ClassName = "prep_1"
	ClassPrep2      ClassName = "prep_2"
	ClassPrep3      ClassName = "prep_3"
	ClassSecondary1 ClassName = "secondary_1"
	ClassSecondary2 ClassName = "secondary_2"
	ClassSecondary3 ClassName = "secondary_3"
)

// ClassNames lists every supported class.
func ClassNames() []ClassName {
	return []ClassName{
		ClassPrep1,
		ClassPrep2,
		ClassPrep3,
		ClassSecondary1,
		ClassSecondary2,
		ClassSecondary3,
	}
}

// Valid returns true when the class name is a supported value.
func (c ClassName) Valid() bool {
	switch c {
	case ClassPrep1, ClassPrep2, ClassPrep3, ClassSecondary1, ClassSecondary2, ClassSecondary3:
		return true
	default:
		return false
	}
}
