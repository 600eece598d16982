package esp

import (
	"context"
	"fmt"
	"strings"

	"i4.energy/across/mqttgw/at"
)

// WiFiMode selects how the module's radio operates.
type WiFiMode int

const (
	ModeStation     WiFiMode = 1
	ModeAccessPoint WiFiMode = 2
	ModeStationAP   WiFiMode = 3
)

// Test issues the bare attention command as a self-test.
func (d *Device) Test(ctx context.Context) error {
	return d.SendCommand(ctx, "AT\r\n", at.OK, d.config.CommandTimeout)
}

// Reset restarts the module firmware and waits for it to come back up.
// Connectivity is lost across a reset.
func (d *Device) Reset(ctx context.Context) error {
	err := d.SendCommand(ctx, "AT+RST\r\n", at.Ready, d.config.LongTimeout)
	if err != nil {
		return err
	}
	d.clock.Sleep(2 * d.config.SettleDelay)
	d.connectivity = Disconnected
	return nil
}

// Restore resets the module to factory defaults and waits for restart.
func (d *Device) Restore(ctx context.Context) error {
	err := d.SendCommand(ctx, "AT+RESTORE\r\n", at.Ready, d.config.LongTimeout)
	if err != nil {
		return err
	}
	d.clock.Sleep(2 * d.config.SettleDelay)
	d.connectivity = Disconnected
	return nil
}

// Version returns the firmware version report.
func (d *Device) Version(ctx context.Context) (string, error) {
	if err := d.SendCommand(ctx, "AT+GMR\r\n", at.OK, d.config.CommandTimeout); err != nil {
		return "", err
	}
	return strings.TrimSpace(string(d.ResponseBytes())), nil
}

// SetEcho enables or disables command echo.
func (d *Device) SetEcho(ctx context.Context, enable bool) error {
	n := 0
	if enable {
		n = 1
	}
	return d.SendCommandf(ctx, at.OK, d.config.CommandTimeout, "ATE%d\r\n", n)
}

// SetWiFiMode selects station, access-point, or combined operation.
func (d *Device) SetWiFiMode(ctx context.Context, mode WiFiMode) error {
	if mode < ModeStation || mode > ModeStationAP {
		return ErrInvalidParam
	}
	return d.SendCommandf(ctx, at.OK, d.config.CommandTimeout, "AT+CWMODE=%d\r\n", mode)
}

// Associate joins the named access point. Association is slow, so it runs
// under the connect timeout. On success the station address is fetched
// opportunistically; on failure a rejection marker in the response
// distinguishes a refused join from a timed-out one.
func (d *Device) Associate(ctx context.Context, ssid, passphrase string) error {
	if ssid == "" {
		return ErrInvalidParam
	}

	d.connectivity = Associating
	d.logger.Info("associating", "ssid", ssid)

	err := d.SendCommandf(ctx, at.OK, d.config.ConnectTimeout,
		"AT+CWJAP=\"%s\",\"%s\"\r\n", ssid, passphrase)
	if err != nil {
		d.connectivity = Disconnected
		if d.Contains(at.FAIL) {
			return fmt.Errorf("join %s: %w", ssid, ErrConnectFailed)
		}
		return fmt.Errorf("join %s: %w", ssid, err)
	}

	d.connectivity = Associated
	if d.onConnected != nil {
		d.onConnected()
	}
	if ip, err := d.fetchStationIP(ctx); err == nil {
		d.logger.Info("associated", "ssid", ssid, "ip", ip)
	}
	return nil
}

// Disassociate leaves the current access point.
func (d *Device) Disassociate(ctx context.Context) error {
	if err := d.SendCommand(ctx, "AT+CWQAP\r\n", at.OK, d.config.CommandTimeout); err != nil {
		return err
	}
	d.connectivity = Disconnected
	if d.onDisconnected != nil {
		d.onDisconnected()
	}
	return nil
}

// fetchStationIP queries address info and extracts the station address.
func (d *Device) fetchStationIP(ctx context.Context) (string, error) {
	if err := d.SendCommand(ctx, "AT+CIFSR\r\n", at.OK, d.config.CommandTimeout); err != nil {
		return "", err
	}
	ip, ok := at.StationIP(d.ResponseBytes())
	if !ok {
		return "", fmt.Errorf("no station address in response")
	}
	d.stationIP = ip
	return ip, nil
}

// Ping checks reachability of host through the module.
func (d *Device) Ping(ctx context.Context, host string) error {
	if host == "" {
		return ErrInvalidParam
	}
	return d.SendCommandf(ctx, at.OK, d.config.LongTimeout, "AT+PING=\"%s\"\r\n", host)
}
