package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const modelWithProperties = `<?xml version="1.0" encoding="UTF-8"?>
<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL"
                  xmlns:camunda="http://camunda.org/schema/1.0/bpmn">
  <bpmn:process id="claims" isExecutable="true">
    <bpmn:extensionElements>
      <camunda:properties>
        <camunda:property name="encryptVariables" value="true"/>
        <camunda:property name="product" value="insurance"/>
      </camunda:properties>
    </bpmn:extensionElements>
  </bpmn:process>
</bpmn:definitions>`

const modelWithoutProperties = `<?xml version="1.0" encoding="UTF-8"?>
<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <bpmn:process id="plain" isExecutable="true"/>
</bpmn:definitions>`

func TestParseModelReadsExtensionProperties(t *testing.T) {
	m := ParseModel([]byte(modelWithProperties))
	assert.Equal(t, "true", StringAttribute(m, "encryptVariables", ""))
	assert.Equal(t, "insurance", StringAttribute(m, "product", ""))
}

func TestParseModelCaseInsensitiveLookup(t *testing.T) {
	m := ParseModel([]byte(modelWithProperties))
	assert.Equal(t, "insurance", StringAttribute(m, "PRODUCT", ""))
	assert.True(t, BoolAttribute(m, "ENCRYPTVARIABLES", false))
}

func TestParseModelToleratesGarbage(t *testing.T) {
	for _, raw := range [][]byte{nil, {}, []byte("not xml at all"), []byte("<unclosed")} {
		m := ParseModel(raw)
		assert.Equal(t, "", StringAttribute(m, "product", ""))
		assert.False(t, BoolAttribute(m, "encryptVariables", false))
	}
}

func TestShouldEncrypt(t *testing.T) {
	r := &Resolver{CaseBucket: "case-data"}

	assert.True(t, r.ShouldEncrypt(ParseModel([]byte(modelWithProperties))))
	assert.False(t, r.ShouldEncrypt(ParseModel([]byte(modelWithoutProperties))))
}

func TestShouldEncryptNonBooleanValue(t *testing.T) {
	raw := `<definitions xmlns:camunda="http://camunda.org/schema/1.0/bpmn">
	  <camunda:property name="encryptVariables" value="yes please"/>
	</definitions>`
	r := &Resolver{}
	assert.False(t, r.ShouldEncrypt(ParseModel([]byte(raw))))
}

func TestBucketNameWithProduct(t *testing.T) {
	r := &Resolver{BucketPrefix: "acme-forms", CaseBucket: "case-data"}
	assert.Equal(t, "acme-forms-insurance", r.BucketName(ParseModel([]byte(modelWithProperties))))
}

func TestBucketNameFallback(t *testing.T) {
	r := &Resolver{BucketPrefix: "acme-forms", CaseBucket: "case-data"}
	assert.Equal(t, "case-data", r.BucketName(ParseModel([]byte(modelWithoutProperties))))
	assert.Equal(t, "case-data", r.BucketName(ParseModel(nil)))
}

func TestAttributeFirstMatchWins(t *testing.T) {
	raw := `<definitions xmlns:camunda="http://camunda.org/schema/1.0/bpmn">
	  <camunda:property name="product" value="first"/>
	  <camunda:property name="Product" value="second"/>
	</definitions>`
	m := ParseModel([]byte(raw))
	assert.Equal(t, "first", StringAttribute(m, "product", ""))
}
