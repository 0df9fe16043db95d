package ml

import (
	"time"

	"heart-risk/internal/features"
)

// SampleArtifact returns a small, fixed demonstration artifact over the
// canonical schema. Its parameters are hand-set, not trained; it exists so
// the engine, its tests and local deployments have a valid bundle to load.
func SampleArtifact() *Artifact {
	scaler := Scaler{
		Mean:  []float64{54.4, 0.68, 0.97, 131.6, 246.3, 0.15, 0.53, 149.6, 0.33, 1.04, 1.4, 0.73, 2.31},
		Scale: []float64{9.1, 0.47, 1.03, 17.5, 51.8, 0.36, 0.53, 22.9, 0.47, 1.16, 0.62, 1.02, 0.61},
	}
	s := sampleBuilder{scaler: scaler}

	forest := []Tree{
		s.tree(s.split(features.ChestPain, 2.5,
			s.split(features.MaxHeartRate, 120, leaf(0.62), leaf(0.28)),
			s.split(features.Vessels, 0.5, leaf(0.58), leaf(0.86)))),
		s.tree(s.split(features.STDepression, 2,
			s.split(features.ExerciseAngina, 0.5, leaf(0.22), leaf(0.55)),
			s.split(features.Age, 55, leaf(0.55), leaf(0.80)))),
		s.tree(s.split(features.Vessels, 0.5,
			s.split(features.Sex, 0.5, leaf(0.15), leaf(0.35)),
			s.split(features.Cholesterol, 240, leaf(0.60), leaf(0.78)))),
		s.tree(s.split(features.RestingBP, 140,
			s.split(features.Thalassemia, 2.5, leaf(0.30), leaf(0.50)),
			s.split(features.FastingBloodSugar, 0.5, leaf(0.55), leaf(0.72)))),
	}

	boosted := []Tree{
		s.tree(s.split(features.Vessels, 0.5,
			s.split(features.ChestPain, 2.5, leaf(-0.45), leaf(0.30)),
			s.split(features.STDepression, 2, leaf(0.35), leaf(0.75)))),
		s.tree(s.split(features.MaxHeartRate, 120,
			s.split(features.ExerciseAngina, 0.5, leaf(0.30), leaf(0.60)),
			s.split(features.Age, 55, leaf(-0.35), leaf(0.10)))),
		s.tree(s.split(features.Sex, 0.5,
			leaf(-0.30),
			s.split(features.Cholesterol, 240, leaf(0.05), leaf(0.25)))),
		s.tree(s.split(features.STSlope, 0.5,
			leaf(0.15),
			s.split(features.RestingECG, 0.5, leaf(-0.10), leaf(0.05)))),
	}

	return &Artifact{
		Version:   "1.0.0",
		TrainedAt: time.Date(2024, 12, 11, 0, 0, 0, 0, time.UTC),
		Features:  features.Names(),
		Scaler:    scaler,
		BaseLearners: []LearnerSpec{
			{Name: "random_forest", Kind: KindRandomForest, Trees: forest},
			{Name: "xgboost", Kind: KindGradientBoosting, BaseScore: -0.4, Trees: boosted},
			{
				Name:      "logistic_regression",
				Kind:      KindLogistic,
				Coef:      []float64{0.35, 0.45, 0.55, 0.25, 0.2, 0.1, 0.1, -0.5, 0.45, 0.5, -0.2, 0.6, 0.3},
				Intercept: -0.1,
			},
		},
		MetaLearner: MetaSpec{
			Coef:        []float64{2.1, 1.8, 1.6},
			Intercept:   -2.75,
			Calibration: &Calibration{A: -4.2, B: 2.1},
		},
		Background: [][]float64{
			{63, 1, 3, 145, 233, 1, 0, 150, 0, 2.3, 0, 0, 1},
			{37, 1, 2, 130, 250, 0, 1, 187, 0, 3.5, 0, 0, 2},
			{41, 0, 1, 130, 204, 0, 0, 172, 0, 1.4, 2, 0, 2},
			{56, 1, 1, 120, 236, 0, 1, 178, 0, 0.8, 2, 0, 2},
			{57, 0, 0, 120, 354, 0, 1, 163, 1, 0.6, 2, 0, 2},
			{57, 1, 0, 140, 192, 0, 1, 148, 0, 0.4, 1, 0, 1},
			{56, 0, 1, 140, 294, 0, 0, 153, 0, 1.3, 1, 0, 2},
			{44, 1, 1, 120, 263, 0, 1, 173, 0, 0, 2, 0, 3},
			{52, 1, 2, 172, 199, 1, 1, 162, 0, 0.5, 2, 0, 3},
			{57, 1, 2, 150, 168, 0, 1, 174, 0, 1.6, 2, 0, 2},
			{54, 1, 0, 140, 239, 0, 1, 160, 0, 1.2, 2, 0, 2},
			{48, 0, 2, 130, 275, 0, 1, 139, 0, 0.2, 2, 0, 2},
			{49, 1, 1, 130, 266, 0, 1, 171, 0, 0.6, 2, 0, 2},
			{64, 1, 3, 110, 211, 0, 0, 144, 1, 1.8, 1, 0, 2},
			{58, 0, 3, 150, 283, 1, 0, 162, 0, 1, 2, 0, 2},
			{50, 0, 2, 120, 219, 0, 1, 158, 0, 1.6, 1, 0, 2},
			{58, 1, 0, 150, 270, 0, 0, 111, 1, 0.8, 2, 0, 3},
			{60, 1, 0, 130, 206, 0, 0, 132, 1, 2.4, 1, 2, 3},
			{67, 1, 0, 160, 286, 0, 0, 108, 1, 1.5, 1, 3, 2},
			{62, 0, 0, 140, 268, 0, 0, 160, 0, 3.6, 0, 2, 2},
		},
		Metrics: TrainingMetrics{
			Accuracy:        0.92,
			Precision:       0.91,
			Recall:          0.93,
			F1Score:         0.92,
			ROCAUC:          0.95,
			TrainingSamples: 1000,
		},
	}
}

// sampleNode is a pointer tree used only to author SampleArtifact readably.
type sampleNode struct {
	feature     int
	threshold   float64
	left, right *sampleNode
	value       float64
}

func leaf(v float64) *sampleNode { return &sampleNode{value: v} }

type sampleBuilder struct {
	scaler Scaler
}

// split takes the threshold in raw clinical units and stores it scaled.
func (b sampleBuilder) split(feature int, raw float64, left, right *sampleNode) *sampleNode {
	t := (raw - b.scaler.Mean[feature]) / b.scaler.Scale[feature]
	return &sampleNode{feature: feature, threshold: t, left: left, right: right}
}

// tree flattens in pre-order so every child index exceeds its parent's.
func (b sampleBuilder) tree(root *sampleNode) Tree {
	var t Tree
	var walk func(n *sampleNode) int
	walk = func(n *sampleNode) int {
		i := len(t.Value)
		t.Feature = append(t.Feature, 0)
		t.Threshold = append(t.Threshold, 0)
		t.Left = append(t.Left, -1)
		t.Right = append(t.Right, -1)
		t.Value = append(t.Value, n.value)
		if n.left == nil {
			return i
		}
		t.Feature[i] = n.feature
		t.Threshold[i] = n.threshold
		l := walk(n.left)
		r := walk(n.right)
		t.Left[i] = l
		t.Right[i] = r
		return i
	}
	walk(root)
	return t
}
