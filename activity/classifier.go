package activity

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/sjwhitworth/golearn/base"
	"github.com/sjwhitworth/golearn/knn"

	"github.com/posecoach/posecoach/kinematics"
)

// Classifier labels one frame as active from its feature vector. It is the
// fallback selector consulted when the motion rule's output looks implausible.
type Classifier interface {
	Classify(features []float64) (bool, error)
}

// FrameFeatures builds the per-frame feature vector the fallback classifier
// consumes: motion energy, a local energy average, the driver angle scaled to
// [0,1], and the visible-joint fraction. Missing signals contribute zero.
func FrameFeatures(energies, driverAngles *kinematics.Series, visFraction []float64, i int) []float64 {
	feats := make([]float64, 4)
	if !energies.Missing(i) {
		feats[0] = energies.Values[i]
	}
	sum, cnt := 0.0, 0
	for j := i - 3; j <= i+3; j++ {
		if j < 0 || j >= energies.Len() || energies.Missing(j) {
			continue
		}
		sum += energies.Values[j]
		cnt++
	}
	if cnt > 0 {
		feats[1] = sum / float64(cnt)
	}
	if !driverAngles.Missing(i) {
		feats[2] = driverAngles.Values[i] / 180
	}
	if i < len(visFraction) {
		feats[3] = visFraction[i]
	}
	return feats
}

// KNNClassifier is a nearest-neighbor activity filter fit from exemplar
// feature vectors.
type KNNClassifier struct {
	theClassifier base.Classifier
	format        *base.DenseInstances
}

// NewKNNClassifier fits a KNN on the given exemplars. labels holds 1 for
// active and 0 for rest.
func NewKNNClassifier(exemplars [][]float64, labels []int) (*KNNClassifier, error) {
	rawData, err := makeDataSet(exemplars, labels)
	if err != nil {
		return nil, err
	}
	c := &KNNClassifier{
		theClassifier: knn.NewKnnClassifier("euclidean", "linear", 3),
		format:        base.NewStructuralCopy(rawData),
	}
	if err := c.theClassifier.Fit(rawData); err != nil {
		return nil, errors.Wrap(err, "cannot fit activity classifier")
	}
	return c, nil
}

// NewDefaultClassifier fits the KNN on the embedded exemplar table, the
// compact footprint of the offline-trained activity filter.
func NewDefaultClassifier() (*KNNClassifier, error) {
	return NewKNNClassifier(defaultExemplars, defaultLabels)
}

// Classify labels one frame from its feature vector.
func (c *KNNClassifier) Classify(features []float64) (bool, error) {
	di := makeClassifyDataSet(c.format, features)
	res, err := c.theClassifier.Predict(di)
	if err != nil {
		return false, errors.Wrap(err, "activity classifier predict")
	}
	return singleResult(res) != 0, nil
}

func makeClassifyDataSet(format base.FixedDataGrid, data []float64) *base.DenseInstances {
	di := base.NewStructuralCopy(format)
	if err := di.Extend(1); err != nil {
		panic(err)
	}
	for x, a := range di.AllAttributes() {
		if x >= len(data) {
			break
		}
		spec, err := di.GetAttribute(a)
		if err != nil {
			panic(err) // internal error
		}
		di.Set(spec, 0, base.PackFloatToBytes(data[x]))
	}
	return di
}

func singleResult(res base.FixedDataGrid) int {
	attrs := res.AllAttributes()
	spec, err := res.GetAttribute(attrs[0])
	if err != nil {
		panic(err) // internal error
	}
	return int(math.Round(base.UnpackBytesToFloat(res.Get(spec, 0))))
}

func makeDataSet(data [][]float64, correct []int) (base.FixedDataGrid, error) {
	if len(data) == 0 {
		return nil, errors.New("no exemplars")
	}
	if len(data) != len(correct) {
		return nil, errors.Errorf("exemplars and labels differ in length, %d vs %d", len(data), len(correct))
	}

	rawData := base.NewDenseInstances()
	specs := make([]base.AttributeSpec, len(data[0])+1)
	for x := range data[0] {
		specs[x] = rawData.AddAttribute(base.NewFloatAttribute(fmt.Sprintf("v%d", x)))
	}
	ca := base.NewFloatAttribute("active")
	specs[len(data[0])] = rawData.AddAttribute(ca)
	if err := rawData.AddClassAttribute(ca); err != nil {
		return nil, err
	}
	if err := rawData.Extend(len(data)); err != nil {
		return nil, err
	}
	for x, row := range data {
		for y, v := range row {
			rawData.Set(specs[y], x, base.PackFloatToBytes(v))
		}
		rawData.Set(specs[len(row)], x, base.PackFloatToBytes(float64(correct[x])))
	}
	return rawData, nil
}

// The exemplar table spans the regimes the rule misjudges: static scenes with
// sensor noise (rest), slow controlled reps (active), vigorous reps (active),
// and between-set shuffling (rest). Features follow FrameFeatures.
var (
	defaultExemplars = [][]float64{
		{0.1, 0.1, 0.9, 0.95},
		{0.2, 0.2, 0.9, 0.9},
		{0.3, 0.2, 0.85, 0.8},
		{0.4, 0.3, 0.5, 0.6},
		{0.2, 0.3, 0.55, 0.9},
		{0.6, 0.5, 0.6, 0.4},
		{0.8, 0.7, 0.5, 0.95},
		{1.2, 1.0, 0.8, 0.9},
		{1.6, 1.4, 0.6, 0.9},
		{2.0, 1.8, 0.5, 0.95},
		{2.4, 2.2, 0.4, 0.9},
		{3.0, 2.6, 0.35, 0.85},
		{3.6, 3.0, 0.5, 0.9},
		{4.5, 4.0, 0.6, 0.95},
		{5.5, 5.0, 0.7, 0.9},
		{7.0, 6.0, 0.8, 0.95},
		{1.0, 0.9, 0.7, 0.3},
		{1.4, 1.2, 0.6, 0.2},
		{0.9, 0.8, 0.75, 0.85},
		{1.1, 1.0, 0.65, 0.9},
	}
	defaultLabels = []int{
		0, 0, 0, 0, 0, 0, 0,
		1, 1, 1, 1, 1, 1, 1, 1, 1,
		0, 0,
		1, 1,
	}
)
