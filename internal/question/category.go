package question

// Category is one of the fixed editorial categories a dilemma is filed under.
type Category string

// The fixed category set. Creating a question in a category outside this list
// is a validation error; lookups with an unknown category are a not-found.
const (
	CategoryAnimals       Category = "animals"
	CategoryBusiness      Category = "business"
	CategoryCharity       Category = "charity"
	CategoryCrime         Category = "crime"
	CategoryDeath         Category = "death"
	CategoryEducation     Category = "education"
	CategoryEnvironment   Category = "environment"
	CategoryFamily        Category = "family"
	CategoryFriendship    Category = "friendship"
	CategoryHealth        Category = "health"
	CategoryHonesty       Category = "honesty"
	CategoryJustice       Category = "justice"
	CategoryLaw           Category = "law"
	CategoryLove          Category = "love"
	CategoryLoyalty       Category = "loyalty"
	CategoryMedicine      Category = "medicine"
	CategoryMoney         Category = "money"
	CategoryParenting     Category = "parenting"
	CategoryPolitics      Category = "politics"
	CategoryPrivacy       Category = "privacy"
	CategoryPromises      Category = "promises"
	CategoryRelationships Category = "relationships"
	CategoryReligion      Category = "religion"
	CategorySacrifice     Category = "sacrifice"
	CategoryScience       Category = "science"
	CategorySociety       Category = "society"
	CategorySports        Category = "sports"
	CategorySurvival      Category = "survival"
	CategoryTechnology    Category = "technology"
	CategoryWork          Category = "work"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryAnimals, CategoryBusiness, CategoryCharity, CategoryCrime,
	CategoryDeath, CategoryEducation, CategoryEnvironment, CategoryFamily,
	CategoryFriendship, CategoryHealth, CategoryHonesty, CategoryJustice,
	CategoryLaw, CategoryLove, CategoryLoyalty, CategoryMedicine,
	CategoryMoney, CategoryParenting, CategoryPolitics, CategoryPrivacy,
	CategoryPromises, CategoryRelationships, CategoryReligion, CategorySacrifice,
	CategoryScience, CategorySociety, CategorySports, CategorySurvival,
	CategoryTechnology, CategoryWork,
}

var categorySet = func() map[Category]bool {
	m := make(map[Category]bool, len(Categories))
	for _, c := range Categories {
		m[c] = true
	}
	return m
}()

// ValidCategory reports whether s is one of the fixed categories.
func ValidCategory(s string) bool {
	return categorySet[Category(s)]
}
