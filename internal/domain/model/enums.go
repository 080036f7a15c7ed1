package model

// PropertyType is the kind of dwelling.
type PropertyType string

const (
	TypeApartment  PropertyType = "APARTMENT"
	TypeHouse      PropertyType = "HOUSE"
	TypePenthouse  PropertyType = "PENTHOUSE"
	TypeDuplex     PropertyType = "DUPLEX"
	TypeStudio     PropertyType = "STUDIO"
	TypeCommercial PropertyType = "COMMERCIAL"
)

// Valid reports whether t is a known property type.
func (t PropertyType) Valid() bool {
	switch t {
	case TypeApartment, TypeHouse, TypePenthouse, TypeDuplex, TypeStudio, TypeCommercial:
		return true
	}
	return false
}

// Condition is the state of repair of a property.
type Condition string

const (
	ConditionNew         Condition = "NEW"
	ConditionExcellent   Condition = "EXCELLENT"
	ConditionGood        Condition = "GOOD"
	ConditionFair        Condition = "FAIR"
	ConditionNeedsReform Condition = "NEEDS_REFORM"
)

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionExcellent, ConditionGood, ConditionFair, ConditionNeedsReform:
		return true
	}
	return false
}

// Source is where a comparable was obtained.
type Source string

const (
	SourcePortal   Source = "PORTAL"
	SourceRegistro Source = "REGISTRO"
	SourceNotaria  Source = "NOTARIA"
	SourceInterno  Source = "INTERNO"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourcePortal, SourceRegistro, SourceNotaria, SourceInterno:
		return true
	}
	return false
}

// SqmRule selects how the size adjustment scales price.
type SqmRule string

const (
	SqmLinear SqmRule = "LINEAR"
	SqmSqrt   SqmRule = "SQRT"
)

// Method selects the similarity scorer.
type Method string

const (
	MethodCosine Method = "COSINE"
	MethodKNN    Method = "KNN"
)

// Aggregation selects how weighted prices collapse into one estimate.
type Aggregation string

const (
	AggregationMedian Aggregation = "MEDIAN"
	AggregationMean   Aggregation = "MEAN"
)

// Feature names a dimension of the similarity vector.
type Feature string

const (
	FeatureSqm      Feature = "sqm"
	FeatureRooms    Feature = "rooms"
	FeatureBaths    Feature = "baths"
	FeatureFloor    Feature = "floor"
	FeatureAge      Feature = "age"
	FeatureTerrace  Feature = "terrace"
	FeatureDistance Feature = "distance"
)

// Features lists every scoring dimension in vector order.
var Features = []Feature{
	FeatureSqm, FeatureRooms, FeatureBaths, FeatureFloor, FeatureAge, FeatureTerrace, FeatureDistance,
}

// Valid reports whether f is a known feature.
func (f Feature) Valid() bool {
	for _, known := range Features {
		if f == known {
			return true
		}
	}
	return false
}

// SortField orders a comparable page.
type SortField string

const (
	SortDistance SortField = "distance"
	SortDate     SortField = "date"
	SortPrice    SortField = "price"
	SortSqm      SortField = "sqm"
)

// SortOrder is asc or desc.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)
