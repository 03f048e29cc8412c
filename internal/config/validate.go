package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSegmentation(); err != nil {
		return err
	}
	if err := c.validateCompose(); err != nil {
		return err
	}
	if err := c.validateReconcile(); err != nil {
		return err
	}
	if err := c.validateMux(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSegmentation() error {
	if err := c.Segmentation.Original.validate("segmentation.original"); err != nil {
		return err
	}
	return c.Segmentation.Translated.validate("segmentation.translated")
}

// Validate ensures the profile describes a usable silence detector.
func (p SegmentationProfile) Validate() error {
	return p.validate("segmentation")
}

func (p SegmentationProfile) validate(prefix string) error {
	if p.MinSilenceLenMs <= 0 {
		return fmt.Errorf("%s.min_silence_len_ms must be positive", prefix)
	}
	if p.PaddingMs < 0 {
		return fmt.Errorf("%s.padding_ms must be >= 0", prefix)
	}
	if p.SilenceThresholdDB >= 0 || p.SilenceThresholdDB < minSilenceThresholdDB {
		return fmt.Errorf("%s.silence_threshold_db must be between %.0f and 0 (dBFS)", prefix, minSilenceThresholdDB)
	}
	return nil
}

func (c *Config) validateCompose() error {
	if c.Compose.SampleRate < minSampleRate || c.Compose.SampleRate > maxSampleRate {
		return fmt.Errorf("compose.sample_rate must be between %d and %d", minSampleRate, maxSampleRate)
	}
	if c.Compose.Channels <= 0 || c.Compose.Channels > maxChannels {
		return fmt.Errorf("compose.channels must be between 1 and %d", maxChannels)
	}
	if c.Compose.BackgroundGainDB > 0 {
		return errors.New("compose.background_gain_db must be <= 0 (attenuation only)")
	}
	if c.Compose.Workers <= 0 {
		return errors.New("compose.workers must be positive")
	}
	return nil
}

func (c *Config) validateReconcile() error {
	if !c.Reconcile.Enabled {
		return nil
	}
	if c.Reconcile.Tolerance < 0 || c.Reconcile.Tolerance >= maxReconcileToleranceExclusive {
		return errors.New("reconcile.tolerance must be between 0 and 1")
	}
	if c.Reconcile.MaxRatio <= 1 {
		return errors.New("reconcile.max_ratio must be greater than 1")
	}
	return nil
}

func (c *Config) validateMux() error {
	if c.Mux.FrameRate <= 0 {
		return errors.New("mux.frame_rate must be positive")
	}
	return nil
}
