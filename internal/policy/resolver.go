package policy

// Model property keys read by the resolver.
const (
	// EncryptVariablesProperty gates variable encryption for a definition.
	EncryptVariablesProperty = "encryptVariables"
	// ProductProperty names the logical product a definition's submissions
	// belong to; it selects the persistence bucket.
	ProductProperty = "product"
)

// Resolver derives per-definition policy from a process model's extension
// properties. Resolution is read-only and recomputed on demand.
type Resolver struct {
	// BucketPrefix is prepended to the product name when composing a
	// product-specific bucket.
	BucketPrefix string
	// CaseBucket is the fallback bucket for definitions without a product.
	CaseBucket string
}

// ShouldEncrypt reports whether variable encryption applies to the model:
// true iff a boolean-valued encryptVariables property is present and true.
func (r *Resolver) ShouldEncrypt(m *Model) bool {
	return BoolAttribute(m, EncryptVariablesProperty, false)
}

// BucketName resolves the persistence namespace for the model's
// submissions: prefix-product when a product property is present,
// otherwise the fallback case bucket.
func (r *Resolver) BucketName(m *Model) string {
	product := StringAttribute(m, ProductProperty, "")
	if product == "" {
		return r.CaseBucket
	}
	return r.BucketPrefix + "-" + product
}
