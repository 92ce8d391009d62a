// Package sorel reads solar-thermal controller values from Sorel Connect.
//
// A cycle logs in once and then reads every configured channel:
//
//	session, err := client.Authenticate(ctx)
//	if err != nil {
//	    return err // fault.KindAuth or fault.KindFetch
//	}
//	readings, err := client.ReadAll(ctx, session)
//	// readings holds every channel that decoded; err joins the rest.
//
// Sensor channels return values like "55°C" and relay channels values like
// "1_ON". Both are decoded into reading.Value; anything else is a
// fault.KindParse error.
//
// The login request carries the password in its query string, as the
// controller's hosted plugin requires. Transport errors are stripped of
// their URL before being returned so the password never reaches the logs.
package sorel
