package features

const (
	ClassLegendary    = "legendary"
	ClassNonLegendary = "non_legendary"
)

var referenceStats = map[string]StatVector{
	ClassLegendary: {
		HP: 100, Attack: 115, Defense: 95, SpAttack: 115, SpDefense: 95, Speed: 95,
	},
	ClassNonLegendary: {
		HP: 65, Attack: 75, Defense: 65, SpAttack: 75, SpDefense: 65, Speed: 65,
	},
}

// Reference returns the centroid for the given class label.
func Reference(class string) StatVector {
	return referenceStats[class]
}

// ReferenceFor returns the centroid matching a predicted class (1 = legendary).
func ReferenceFor(prediction int) StatVector {
	if prediction == 1 {
		return referenceStats[ClassLegendary]
	}
	return referenceStats[ClassNonLegendary]
}
