package config

const (
	// ProfileOriginal names the segmentation profile for the source recording.
	ProfileOriginal = "original"
	// ProfileTranslated names the segmentation profile for synthesized audio.
	ProfileTranslated = "translated"
)

const (
	defaultLogDir                  = "~/.local/share/dubsync/logs"
	defaultFFmpegBinary            = "ffmpeg"
	defaultFFprobeBinary           = "ffprobe"
	defaultOriginalMinSilenceMs    = 200
	defaultOriginalPaddingMs       = 50
	defaultTranslatedMinSilenceMs  = 2000
	defaultTranslatedPaddingMs     = 300
	defaultSilenceThresholdDB      = -30.0
	defaultBackgroundGainDB        = -18.0
	defaultSampleRate              = 44100
	defaultChannels                = 2
	defaultComposeWorkers          = 4
	defaultReconcileTolerance      = 0.20
	defaultReconcileMaxRatio       = 3.0
	defaultMuxFrameRate            = 30
	defaultMuxVideoCodec           = "libx264"
	defaultMuxAudioCodec           = "aac"
	defaultMuxOutputSuffix         = "_translated"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	maxChannels                    = 8
	minSampleRate                  = 8000
	maxSampleRate                  = 192000
	minSilenceThresholdDB          = -120.0
	maxReconcileToleranceExclusive = 1.0
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Tools: Tools{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
		},
		Segmentation: Segmentation{
			Original: SegmentationProfile{
				MinSilenceLenMs:    defaultOriginalMinSilenceMs,
				SilenceThresholdDB: defaultSilenceThresholdDB,
				PaddingMs:          defaultOriginalPaddingMs,
			},
			Translated: SegmentationProfile{
				MinSilenceLenMs:    defaultTranslatedMinSilenceMs,
				SilenceThresholdDB: defaultSilenceThresholdDB,
				PaddingMs:          defaultTranslatedPaddingMs,
			},
		},
		Compose: Compose{
			BackgroundGainDB: defaultBackgroundGainDB,
			SampleRate:       defaultSampleRate,
			Channels:         defaultChannels,
			Workers:          defaultComposeWorkers,
		},
		Reconcile: Reconcile{
			Enabled:   true,
			Tolerance: defaultReconcileTolerance,
			MaxRatio:  defaultReconcileMaxRatio,
		},
		Mux: Mux{
			FrameRate:    defaultMuxFrameRate,
			VideoCodec:   defaultMuxVideoCodec,
			AudioCodec:   defaultMuxAudioCodec,
			OutputSuffix: defaultMuxOutputSuffix,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
