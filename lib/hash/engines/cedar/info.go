package cedar

import (
	"github.com/ValentinKolb/hKV/lib/hash"
	"github.com/ValentinKolb/hKV/lib/hash/engines/cedar/internal"
	"github.com/ValentinKolb/hKV/lib/hash/util"
)

// supportedFeatures is the feature mask of the cedar engine.
const supportedFeatures = hash.FeatureSet |
	hash.FeatureIncr |
	hash.FeatureExpire |
	hash.FeatureVersioning |
	hash.FeatureActiveExpire |
	hash.FeatureKeyspace |
	hash.FeatureSave |
	hash.FeatureLoad |
	hash.FeatureRewrite |
	hash.FeatureDigest

// SupportsFeature checks if the engine supports the specified feature.
// Multiple features can be checked at once using bitwise OR.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) SupportsFeature(feature hash.Feature) bool {
	return supportedFeatures&feature == feature
}

// Namespaces returns the number of namespaces the engine hosts.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Namespaces() int {
	return len(c.nss)
}

// GetInfo returns information about the engine (docs see hash/hash.go).
// Size figures are based on a full walk of the field tables; key counts
// per namespace additionally feed a distribution-quality estimate.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) GetInfo() hash.DatabaseInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		totalKeys   int
		totalFields int
		sizeBytes   int
		histogram   = util.NewSizeHistogram()
		nsKeyCounts = make([]float64, len(c.nss))
	)

	for i, nsp := range c.nss {
		nsp.Keys.Range(func(key string, obj *internal.HashObject) bool {
			totalKeys++
			sizeBytes += len(key)
			for field, entry := range obj.Fields {
				totalFields++
				sizeBytes += len(field) + len(entry.Value)
				histogram.AddSample(len(entry.Value))
			}
			return true
		})
		nsKeyCounts[i] = float64(nsp.Keys.Size())
	}

	// list the individual feature flags
	var features []hash.Feature
	for f := hash.Feature(1); f <= hash.FeatureDigest; f <<= 1 {
		if c.SupportsFeature(f) {
			features = append(features, f)
		}
	}

	return hash.DatabaseInfo{
		SizeBytes:         sizeBytes,
		DbType:            hash.ImplCedar,
		IndexMode:         string(c.cfg.IndexMode),
		Namespaces:        len(c.nss),
		SupportedFeatures: features,
		Metadata: map[string]interface{}{
			"num_keys":               totalKeys,
			"num_fields":             totalFields,
			"value_size_avg":         histogram.AverageSize(),
			"value_size_median":      histogram.MedianEstimate(),
			"value_size_p99":         histogram.GetPercentileEstimate(99),
			"namespace_distribution": util.NewDistributionStats(nsKeyCounts),
		},
	}
}

// Close disables the background sweep and releases the engine. The sweep
// goroutine exits at its next tick boundary.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Close() error {
	c.StopActiveExpire()
	return nil
}
